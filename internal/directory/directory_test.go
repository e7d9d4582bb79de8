package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rolebot/internal/config"
	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
	"rolebot/internal/gateway/gatewaytest"
	"rolebot/internal/session"
)

func newSession(t *testing.T, fake *gatewaytest.Fake, feed *eventlog.Feed) *session.Service {
	t.Helper()
	cfg := config.DiscordConfig{Token: config.TokenPlaceholder}
	dial := gateway.Dialer(func(string) (gateway.Gateway, error) { return fake, nil })
	if fake != nil {
		cfg.Token = "real"
	}
	svc := session.New(cfg, dial, feed, zerolog.Nop())
	require.NoError(t, svc.Start(context.Background()))
	return svc
}

func quietFeed() *eventlog.Feed {
	return eventlog.New(zerolog.Nop(), eventlog.WithConsoleEcho(false))
}

func TestListRolesWithoutSessionServesFixture(t *testing.T) {
	req := require.New(t)
	feed := quietFeed()
	d := New(newSession(t, nil, feed), feed, zerolog.Nop())

	got := d.ListRoles(context.Background())
	req.Equal(SourceFixture, got.Source)
	req.NoError(got.Cause)
	req.Equal([]RoleSummary{
		{ID: "1", Name: "Admin", MemberCount: 3},
		{ID: "2", Name: "Moderator", MemberCount: 5},
		{ID: "3", Name: "Member", MemberCount: 42},
		{ID: "4", Name: "VIP", MemberCount: 7},
	}, got.Roles)
}

func TestListRolesFiltersManagedAndEveryone(t *testing.T) {
	req := require.New(t)
	fake := &gatewaytest.Fake{
		GuildList: []gateway.Guild{{ID: "g1", Name: "Main"}},
		RoleList: []gateway.Role{
			{ID: "g1", Name: "@everyone", Everyone: true, MemberCount: 100},
			{ID: "r1", Name: "Mods", MemberCount: 4},
			{ID: "r2", Name: "Some Bot", Managed: true, MemberCount: 1},
			{ID: "r3", Name: "Crew", MemberCount: 9},
		},
	}
	feed := quietFeed()
	d := New(newSession(t, fake, feed), feed, zerolog.Nop())

	got := d.ListRoles(context.Background())
	req.Equal(SourceLive, got.Source)
	req.Equal([]RoleSummary{
		{ID: "r1", Name: "Mods", MemberCount: 4},
		{ID: "r3", Name: "Crew", MemberCount: 9},
	}, got.Roles)
}

func TestListRolesFallsBackOnFetchError(t *testing.T) {
	req := require.New(t)
	cause := errors.New("gateway timeout")
	fake := &gatewaytest.Fake{
		GuildList: []gateway.Guild{{ID: "g1", Name: "Main"}},
		RolesErr:  cause,
	}
	feed := quietFeed()
	d := New(newSession(t, fake, feed), feed, zerolog.Nop())

	got := d.ListRoles(context.Background())
	req.Equal(SourceFixture, got.Source)
	req.ErrorIs(got.Cause, cause)
	req.Len(got.Roles, 4)
	// The masked failure must still be visible to operators.
	req.NotEmpty(feed.Query(eventlog.KindError))
}

func TestListRoleMembersMapsDisplayFields(t *testing.T) {
	req := require.New(t)
	fake := &gatewaytest.Fake{
		GuildList: []gateway.Guild{{ID: "g1", Name: "Main"}},
		MembersByRole: map[string][]gateway.Member{
			"r1": {
				{ID: "u1", Username: "alice", Discriminator: "1234"},
				{ID: "u2", Username: "bobby", Discriminator: "0"},
				{ID: "u3", Username: "cy", Discriminator: "0"},
			},
		},
	}
	feed := quietFeed()
	d := New(newSession(t, fake, feed), feed, zerolog.Nop())

	got, err := d.ListRoleMembers(context.Background(), "r1")
	req.NoError(err)
	req.Equal([]MemberView{
		{ID: "u1", Username: "alice", Tag: "1234", AvatarInitials: "AL", Status: StatusUnknown},
		{ID: "u2", Username: "bobby", Tag: "bobb", AvatarInitials: "BO", Status: StatusUnknown},
		{ID: "u3", Username: "cy", Tag: "cy", AvatarInitials: "CY", Status: StatusUnknown},
	}, got)
}

func TestListRoleMembersUnknownRole(t *testing.T) {
	req := require.New(t)
	fake := &gatewaytest.Fake{
		GuildList:     []gateway.Guild{{ID: "g1", Name: "Main"}},
		MembersByRole: map[string][]gateway.Member{},
	}
	feed := quietFeed()
	d := New(newSession(t, fake, feed), feed, zerolog.Nop())

	_, err := d.ListRoleMembers(context.Background(), "missing")
	req.ErrorIs(err, gateway.ErrRoleNotFound)
}

func TestListRoleMembersWithoutSession(t *testing.T) {
	feed := quietFeed()
	d := New(newSession(t, nil, feed), feed, zerolog.Nop())
	_, err := d.ListRoleMembers(context.Background(), "r1")
	require.ErrorIs(t, err, session.ErrNotInitialized)
}
