package commands

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rolebot/internal/broadcast"
	"rolebot/internal/config"
	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
	"rolebot/internal/gateway/gatewaytest"
	"rolebot/internal/session"
	"rolebot/internal/store"
)

type replies struct {
	mu    sync.Mutex
	texts []string
}

func (r *replies) fn(ctx context.Context, text string) error {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return nil
}

func (r *replies) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

type fixture struct {
	fake    *gatewaytest.Fake
	handler *Handler
	st      *store.Memory
	feed    *eventlog.Feed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := &gatewaytest.Fake{
		GuildList: []gateway.Guild{{ID: "g1", Name: "Main"}},
		RoleList: []gateway.Role{
			{ID: "r1", Name: "Crew", MemberCount: 2},
		},
		MembersByRole: map[string][]gateway.Member{
			"r1": {
				{ID: "u1", Username: "alice", Discriminator: "1111"},
				{ID: "u2", Username: "bob", Discriminator: "2222"},
			},
		},
		DMFailures: map[string]error{"u2": errors.New("dms disabled")},
	}
	feed := eventlog.New(zerolog.Nop(), eventlog.WithConsoleEcho(false))
	dial := func(string) (gateway.Gateway, error) { return fake, nil }
	sess := session.New(config.DiscordConfig{Token: "real"}, dial, feed, zerolog.Nop())
	require.NoError(t, sess.Start(context.Background()))

	engine := broadcast.New(broadcast.Config{
		Workers: 4, RatePerSec: 1000, SendTimeout: time.Second, Deadline: 10 * time.Second,
	}, sess, feed, zerolog.Nop())
	st := store.NewMemory()

	return &fixture{
		fake:    fake,
		handler: New("!", sess, engine, st, feed, zerolog.Nop()),
		st:      st,
		feed:    feed,
	}
}

func adminMsg(content string) gateway.Message {
	return gateway.Message{
		GuildID:   "g1",
		ChannelID: "c1",
		AuthorID:  "admin",
		AuthorTag: "admin#0001",
		Content:   content,
		Admin:     true,
	}
}

func TestDmRoleBroadcastsAndPersists(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	r := &replies{}

	f.handler.Handle(context.Background(), adminMsg("!dmrole Crew movie night at 8"), r.fn)

	req.Equal([]string{"u1"}, f.fake.Sent())

	texts := r.all()
	req.Len(texts, 2)
	req.Equal("✅ Sending DMs to members with role: Crew", texts[0])
	req.Equal("✅ Done: 1 sent, 1 failed", texts[1])

	logs, err := f.st.GetDmLogs(context.Background(), "r1")
	req.NoError(err)
	req.Len(logs, 1)
	req.Equal("movie night at 8", logs[0].Message)
	req.Equal(1, logs[0].SentCount)
	req.Equal(1, logs[0].FailedCount)

	req.NotEmpty(f.feed.Query(eventlog.KindSystem))
}

func TestDmRoleDefaultMessage(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)

	f.handler.Handle(context.Background(), adminMsg("!dmrole Crew"), (&replies{}).fn)

	logs, err := f.st.GetDmLogs(context.Background(), "r1")
	req.NoError(err)
	req.Len(logs, 1)
	req.Equal(DefaultMessage, logs[0].Message)
}

func TestDmRoleRequiresAdmin(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	r := &replies{}

	msg := adminMsg("!dmrole Crew hi")
	msg.Admin = false
	f.handler.Handle(context.Background(), msg, r.fn)

	req.Empty(f.fake.Sent())
	req.Empty(r.all())
}

func TestDmRoleMissingRoleName(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	r := &replies{}

	f.handler.Handle(context.Background(), adminMsg("!dmrole"), r.fn)

	req.Equal([]string{"❌ Please specify a role name!"}, r.all())
	req.Empty(f.fake.Sent())
}

func TestDmRoleUnknownRole(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	r := &replies{}

	f.handler.Handle(context.Background(), adminMsg("!dmrole Ghosts hi"), r.fn)

	req.Equal([]string{"❌ Role not found!"}, r.all())
	req.Empty(f.fake.Sent())
	req.NotEmpty(f.feed.Query(eventlog.KindError))
}

func TestUnrelatedMessagesIgnored(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	r := &replies{}

	f.handler.Handle(context.Background(), adminMsg("hello everyone"), r.fn)
	f.handler.Handle(context.Background(), adminMsg("!dmrolex Crew hi"), r.fn)

	req.Empty(r.all())
	req.Empty(f.fake.Sent())
}
