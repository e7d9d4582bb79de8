// Package commands implements the administrative text-command surface.
//
// One command exists: `<prefix>dmrole <roleName> <message…>`, restricted to
// guild administrators. It resolves the role by name in the active server
// and hands delivery to the broadcast engine.
package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rolebot/internal/broadcast"
	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
	"rolebot/internal/session"
	"rolebot/internal/store"
)

// DefaultMessage is sent when the admin supplies a role but no body.
const DefaultMessage = "Hello! This is a message from your server admin."

type Handler struct {
	prefix string
	sess   *session.Service
	engine *broadcast.Engine
	st     store.Store // nil when persistence is disabled
	feed   *eventlog.Feed
	log    zerolog.Logger
}

func New(prefix string, sess *session.Service, engine *broadcast.Engine, st store.Store, feed *eventlog.Feed, log zerolog.Logger) *Handler {
	if strings.TrimSpace(prefix) == "" {
		prefix = "!"
	}
	return &Handler{
		prefix: prefix,
		sess:   sess,
		engine: engine,
		st:     st,
		feed:   feed,
		log:    log,
	}
}

// Register attaches the handler to the session's message stream.
func (h *Handler) Register() {
	h.sess.OnMessage(h.Handle)
}

// Handle processes one inbound message. It runs the whole broadcast inline,
// so the reply with the tally is accurate rather than fire-and-forget.
func (h *Handler) Handle(ctx context.Context, msg gateway.Message, reply gateway.ReplyFunc) {
	args := strings.Fields(msg.Content)
	if len(args) == 0 || args[0] != h.prefix+"dmrole" {
		return
	}
	if !msg.Admin {
		// Not an error: non-admins simply don't have this command.
		h.log.Debug().Str("author", msg.AuthorTag).Msg("dmrole denied: not an administrator")
		return
	}

	if len(args) < 2 {
		h.say(ctx, reply, "❌ Please specify a role name!")
		return
	}
	roleName := args[1]

	role, err := h.resolveRole(ctx, roleName)
	if err != nil {
		h.say(ctx, reply, "❌ Role not found!")
		h.feed.Recordf(eventlog.KindError, "Role not found: %s", roleName)
		return
	}

	content := strings.Join(args[2:], " ")
	if content == "" {
		content = DefaultMessage
	}

	h.say(ctx, reply, "✅ Sending DMs to members with role: "+role.Name)
	h.feed.Recordf(eventlog.KindInfo, "Sending DMs to members with role: %s", role.Name)

	res, err := h.engine.Broadcast(ctx, role.ID, content)
	if err != nil {
		h.say(ctx, reply, "❌ Failed to send DMs: "+err.Error())
		return
	}
	h.sayf(ctx, reply, "✅ Done: %d sent, %d failed", res.SuccessCount, res.FailedCount)

	if h.st != nil {
		_, err := h.st.SaveDmLog(ctx, store.DmLog{
			RoleID:      role.ID,
			Message:     content,
			SentCount:   res.SuccessCount,
			FailedCount: res.FailedCount,
		})
		if err != nil {
			// Store already fed the event log; the broadcast itself succeeded.
			h.log.Error().Err(err).Msg("dm log persistence failed")
		}
	}

	h.feed.Recordf(eventlog.KindSystem, "Command processed: %sdmrole %s", h.prefix, roleName)
}

// resolveRole finds a role by display name in the active server.
func (h *Handler) resolveRole(ctx context.Context, name string) (gateway.Role, error) {
	gw, ok := h.sess.Gateway()
	if !ok {
		return gateway.Role{}, session.ErrNotInitialized
	}
	guild, ok := h.sess.ActiveGuild()
	if !ok {
		return gateway.Role{}, gateway.ErrNoGuild
	}
	roles, err := gw.Roles(ctx, guild.ID)
	if err != nil {
		return gateway.Role{}, err
	}
	for _, r := range roles {
		if r.Name == name {
			return r, nil
		}
	}
	return gateway.Role{}, gateway.ErrRoleNotFound
}

func (h *Handler) say(ctx context.Context, reply gateway.ReplyFunc, text string) {
	if reply == nil {
		return
	}
	if err := reply(ctx, text); err != nil {
		h.log.Warn().Err(err).Msg("command reply failed")
	}
}

func (h *Handler) sayf(ctx context.Context, reply gateway.ReplyFunc, format string, args ...any) {
	h.say(ctx, reply, fmt.Sprintf(format, args...))
}
