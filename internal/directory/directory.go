// Package directory presents the externally-observed roles and memberships
// of the active server.
//
// Listing policy: with no live session, or when the platform fetch fails,
// ListRoles serves a fixed fixture instead of an error. The result is tagged
// with its source so callers can tell real data from degraded-mode data; the
// failure itself still lands in the event feed for operators.
package directory

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
	"rolebot/internal/session"
)

// Source tags where a listing came from.
type Source string

const (
	SourceLive    Source = "live"
	SourceFixture Source = "fixture"
)

// StatusUnknown is the delivery status reported for listed members. The bot
// does not track per-member delivery history, so it never claims one.
const StatusUnknown = "unknown"

// RoleSummary is the operator-facing projection of a role.
type RoleSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

// Listing is a tagged role listing. Cause is non-nil when the fixture masks
// a real fetch failure.
type Listing struct {
	Roles  []RoleSummary
	Source Source
	Cause  error
}

// MemberView is one member of a role, shaped for display.
type MemberView struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	Tag            string `json:"tag"`
	AvatarInitials string `json:"avatarInitials"`
	Status         string `json:"status"`
}

// ServerInfo describes the active server context.
type ServerInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
	OwnerID     string `json:"ownerID"`
}

// FixtureRoles is the deterministic listing served without live credentials.
// The exact names and counts are part of the demo-mode contract.
func FixtureRoles() []RoleSummary {
	return []RoleSummary{
		{ID: "1", Name: "Admin", MemberCount: 3},
		{ID: "2", Name: "Moderator", MemberCount: 5},
		{ID: "3", Name: "Member", MemberCount: 42},
		{ID: "4", Name: "VIP", MemberCount: 7},
	}
}

type Directory struct {
	sess *session.Service
	feed *eventlog.Feed
	log  zerolog.Logger
}

func New(sess *session.Service, feed *eventlog.Feed, log zerolog.Logger) *Directory {
	return &Directory{sess: sess, feed: feed, log: log}
}

// ListRoles returns the live role set of the active server, excluding the
// implicit everyone role and platform-managed roles. Demo mode and fetch
// failures both yield the fixture, tagged accordingly.
func (d *Directory) ListRoles(ctx context.Context) Listing {
	gw, ok := d.sess.Gateway()
	if !ok {
		d.feed.Record(eventlog.KindInfo, "Using demo roles data")
		return Listing{Roles: FixtureRoles(), Source: SourceFixture}
	}

	guild, ok := d.sess.ActiveGuild()
	if !ok {
		return d.fallback(gateway.ErrNoGuild)
	}
	roles, err := gw.Roles(ctx, guild.ID)
	if err != nil {
		return d.fallback(err)
	}

	out := make([]RoleSummary, 0, len(roles))
	for _, r := range roles {
		if r.Everyone || r.Managed || r.Name == "@everyone" {
			continue
		}
		out = append(out, RoleSummary{ID: r.ID, Name: r.Name, MemberCount: r.MemberCount})
	}
	return Listing{Roles: out, Source: SourceLive}
}

func (d *Directory) fallback(cause error) Listing {
	d.feed.Recordf(eventlog.KindError, "Failed to get roles: %s", cause)
	d.feed.Record(eventlog.KindInfo, "Using fallback demo roles data")
	d.log.Error().Err(cause).Msg("role listing failed; serving fixture")
	return Listing{Roles: FixtureRoles(), Source: SourceFixture, Cause: cause}
}

// ListRoleMembers resolves the members of one role. Unlike ListRoles, lookup
// failures here are surfaced, not masked.
func (d *Directory) ListRoleMembers(ctx context.Context, roleID string) ([]MemberView, error) {
	gw, ok := d.sess.Gateway()
	if !ok {
		return nil, session.ErrNotInitialized
	}
	guild, ok := d.sess.ActiveGuild()
	if !ok {
		return nil, gateway.ErrNoGuild
	}

	members, err := gw.RoleMembers(ctx, guild.ID, roleID)
	if err != nil {
		d.feed.Recordf(eventlog.KindError, "Failed to get role members: %s", err)
		return nil, fmt.Errorf("list role members: %w", err)
	}

	out := make([]MemberView, 0, len(members))
	for _, m := range members {
		out = append(out, MemberView{
			ID:             m.ID,
			Username:       m.Username,
			Tag:            displayTag(m),
			AvatarInitials: initials(m.Username),
			Status:         StatusUnknown,
		})
	}
	return out, nil
}

// Server reports the active server context.
func (d *Directory) Server(ctx context.Context) (ServerInfo, error) {
	if !d.sess.Connected() {
		return ServerInfo{}, session.ErrNotInitialized
	}
	guild, ok := d.sess.ActiveGuild()
	if !ok {
		return ServerInfo{}, gateway.ErrNoGuild
	}
	return ServerInfo{
		ID:          guild.ID,
		Name:        guild.Name,
		MemberCount: guild.MemberCount,
		OwnerID:     guild.OwnerID,
	}, nil
}

// displayTag is the platform discriminator, or the first four username
// characters for accounts migrated to the "0" sentinel.
func displayTag(m gateway.Member) string {
	if m.Discriminator != "" && m.Discriminator != "0" {
		return m.Discriminator
	}
	return firstRunes(m.Username, 4)
}

func initials(username string) string {
	return strings.ToUpper(firstRunes(username, 2))
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
