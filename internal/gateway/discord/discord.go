// Package discord adapts a discordgo session to the gateway interface.
package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"rolebot/internal/gateway"
)

// memberPageSize is the platform maximum for one member list request.
const memberPageSize = 1000

// Dial builds an unopened adapter for the given bot token.
func Dial(token string) (gateway.Gateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent
	return &Adapter{s: s}, nil
}

// Adapter implements gateway.Gateway over a discordgo session.
type Adapter struct {
	s *discordgo.Session

	mu       sync.Mutex
	handlers []gateway.MessageHandler
	opened   bool
}

func (a *Adapter) Open(ctx context.Context) error {
	a.mu.Lock()
	if !a.opened {
		a.s.AddHandler(a.dispatchMessage)
		a.opened = true
	}
	a.mu.Unlock()

	errc := make(chan error, 1)
	go func() { errc <- a.s.Open() }()
	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("discord: open: %w", err)
		}
		return nil
	case <-ctx.Done():
		_ = a.s.Close()
		return ctx.Err()
	}
}

func (a *Adapter) Close(ctx context.Context) error {
	if err := a.s.Close(); err != nil {
		return fmt.Errorf("discord: close: %w", err)
	}
	return nil
}

func (a *Adapter) SelfTag() string {
	if a.s.State == nil || a.s.State.User == nil {
		return ""
	}
	return a.s.State.User.String()
}

func (a *Adapter) SetPresence(activity string) error {
	return a.s.UpdateGameStatus(0, activity)
}

func (a *Adapter) Guilds(ctx context.Context) ([]gateway.Guild, error) {
	state := a.s.State.Guilds
	out := make([]gateway.Guild, 0, len(state))
	for _, g := range state {
		out = append(out, gateway.Guild{
			ID:          g.ID,
			Name:        g.Name,
			OwnerID:     g.OwnerID,
			MemberCount: g.MemberCount,
		})
	}
	return out, nil
}

func (a *Adapter) Roles(ctx context.Context, guildID string) ([]gateway.Role, error) {
	roles, err := a.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: list roles: %w", err)
	}
	counts, err := a.roleMemberCounts(ctx, guildID)
	if err != nil {
		return nil, err
	}
	out := make([]gateway.Role, 0, len(roles))
	for _, r := range roles {
		out = append(out, gateway.Role{
			ID:          r.ID,
			Name:        r.Name,
			Managed:     r.Managed,
			Everyone:    r.ID == guildID, // implicit everyone role shares the guild id
			MemberCount: counts[r.ID],
		})
	}
	return out, nil
}

func (a *Adapter) RoleMembers(ctx context.Context, guildID, roleID string) ([]gateway.Member, error) {
	if err := a.roleExists(ctx, guildID, roleID); err != nil {
		return nil, err
	}
	var out []gateway.Member
	err := a.eachMember(ctx, guildID, func(m *discordgo.Member) {
		for _, id := range m.Roles {
			if id == roleID {
				out = append(out, gateway.Member{
					ID:            m.User.ID,
					Username:      m.User.Username,
					Discriminator: m.User.Discriminator,
				})
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (a *Adapter) SendDM(ctx context.Context, userID, content string) error {
	ch, err := a.s.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: open dm channel: %w", err)
	}
	if _, err := a.s.ChannelMessageSend(ch.ID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: send dm: %w", err)
	}
	return nil
}

func (a *Adapter) Latency() time.Duration {
	return a.s.HeartbeatLatency()
}

func (a *Adapter) OnMessage(h gateway.MessageHandler) {
	a.mu.Lock()
	a.handlers = append(a.handlers, h)
	a.mu.Unlock()
}

func (a *Adapter) roleExists(ctx context.Context, guildID, roleID string) error {
	roles, err := a.s.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: list roles: %w", err)
	}
	for _, r := range roles {
		if r.ID == roleID {
			return nil
		}
	}
	return gateway.ErrRoleNotFound
}

// roleMemberCounts walks the guild member list once and tallies per role.
func (a *Adapter) roleMemberCounts(ctx context.Context, guildID string) (map[string]int, error) {
	counts := map[string]int{}
	err := a.eachMember(ctx, guildID, func(m *discordgo.Member) {
		for _, id := range m.Roles {
			counts[id]++
		}
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (a *Adapter) eachMember(ctx context.Context, guildID string, fn func(*discordgo.Member)) error {
	after := ""
	for {
		page, err := a.s.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("discord: list members: %w", err)
		}
		for _, m := range page {
			if m.User == nil {
				continue
			}
			fn(m)
		}
		if len(page) < memberPageSize {
			return nil
		}
		after = page[len(page)-1].User.ID
	}
}

func (a *Adapter) dispatchMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.GuildID == "" {
		return
	}
	if s.State.User != nil && m.Author.ID == s.State.User.ID {
		return
	}

	msg := gateway.Message{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		AuthorTag: m.Author.String(),
		Content:   m.Content,
		Admin:     a.isAdmin(m.Author.ID, m.ChannelID),
	}
	reply := func(ctx context.Context, text string) error {
		_, err := a.s.ChannelMessageSend(m.ChannelID, text, discordgo.WithContext(ctx))
		return err
	}

	a.mu.Lock()
	handlers := append([]gateway.MessageHandler(nil), a.handlers...)
	a.mu.Unlock()
	ctx := context.Background()
	for _, h := range handlers {
		h(ctx, msg, reply)
	}
}

func (a *Adapter) isAdmin(userID, channelID string) bool {
	perms, err := a.s.State.UserChannelPermissions(userID, channelID)
	if err != nil {
		perms, err = a.s.UserChannelPermissions(userID, channelID)
		if err != nil {
			return false
		}
	}
	return perms&discordgo.PermissionAdministrator != 0
}
