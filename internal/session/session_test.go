package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"rolebot/internal/config"
	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
	"rolebot/internal/gateway/gatewaytest"
)

func quietFeed() *eventlog.Feed {
	return eventlog.New(zerolog.Nop(), eventlog.WithConsoleEcho(false))
}

func TestFormatUptime(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{25 * time.Hour, "1 days, 1 hours"},
		{90 * time.Minute, "1 hours, 30 minutes"},
		{45 * time.Second, "0 minutes"},
		{0, "0 minutes"},
		{49*time.Hour + 5*time.Minute, "2 days, 1 hours"},
		{59 * time.Minute, "59 minutes"},
	}
	for _, tc := range cases {
		if got := FormatUptime(tc.d); got != tc.want {
			t.Fatalf("FormatUptime(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestStartWithoutCredentialEntersDemoMode(t *testing.T) {
	req := require.New(t)
	feed := quietFeed()
	dialed := false
	dial := func(string) (gateway.Gateway, error) {
		dialed = true
		return &gatewaytest.Fake{}, nil
	}

	svc := New(config.DiscordConfig{Token: config.TokenPlaceholder}, dial, feed, zerolog.Nop())
	req.NoError(svc.Start(context.Background()))
	req.False(dialed, "demo mode must not attempt a connection")
	req.False(svc.Connected())

	snap := svc.Status()
	req.Equal(StateOffline, snap.State)
	req.NotEqual("N/A", snap.Uptime, "demo mode records a start time")
	req.Equal("None", snap.Server)
}

func TestStartSelectsFirstGuild(t *testing.T) {
	req := require.New(t)
	fake := &gatewaytest.Fake{
		Tag: "rolebot#0001",
		GuildList: []gateway.Guild{
			{ID: "g1", Name: "Main Server"},
			{ID: "g2", Name: "Second Server"},
		},
		LatencyVal: 42 * time.Millisecond,
	}
	dial := func(string) (gateway.Gateway, error) { return fake, nil }

	svc := New(config.DiscordConfig{Token: "real", Activity: "hello"}, dial, quietFeed(), zerolog.Nop())
	req.NoError(svc.Start(context.Background()))
	req.True(svc.Connected())
	req.Equal("hello", fake.Presence())

	guild, ok := svc.ActiveGuild()
	req.True(ok)
	req.Equal("g1", guild.ID)

	snap := svc.Status()
	req.Equal(StateOnline, snap.State)
	req.Equal("Main Server", snap.Server)
	req.Equal("42ms", snap.Latency)
}

func TestStartFailureGoesOffline(t *testing.T) {
	req := require.New(t)
	feed := quietFeed()
	fake := &gatewaytest.Fake{OpenErr: errors.New("login rejected")}
	dial := func(string) (gateway.Gateway, error) { return fake, nil }

	svc := New(config.DiscordConfig{Token: "real"}, dial, feed, zerolog.Nop())
	err := svc.Start(context.Background())
	req.Error(err)
	req.False(svc.Connected())
	req.Equal(StateOffline, svc.Status().State)
	req.NotEmpty(feed.Query(eventlog.KindError))
}

func TestRestartPropagatesFailure(t *testing.T) {
	req := require.New(t)
	good := &gatewaytest.Fake{Tag: "bot#1"}
	calls := 0
	dial := func(string) (gateway.Gateway, error) {
		calls++
		if calls > 1 {
			return nil, errors.New("gateway unreachable")
		}
		return good, nil
	}

	svc := New(config.DiscordConfig{Token: "real"}, dial, quietFeed(), zerolog.Nop())
	req.NoError(svc.Start(context.Background()))
	req.True(svc.Connected())

	err := svc.Restart(context.Background())
	req.Error(err)
	req.False(svc.Connected())
}

func TestRestartReattachesHandlers(t *testing.T) {
	req := require.New(t)
	first := &gatewaytest.Fake{}
	second := &gatewaytest.Fake{}
	gws := []gateway.Gateway{first, second}
	dial := func(string) (gateway.Gateway, error) {
		gw := gws[0]
		gws = gws[1:]
		return gw, nil
	}

	svc := New(config.DiscordConfig{Token: "real"}, dial, quietFeed(), zerolog.Nop())
	seen := 0
	svc.OnMessage(func(context.Context, gateway.Message, gateway.ReplyFunc) { seen++ })

	req.NoError(svc.Start(context.Background()))
	req.NoError(svc.Restart(context.Background()))

	second.Deliver(context.Background(), gateway.Message{Content: "ping"}, nil)
	req.Equal(1, seen, "handler must survive a restart")
}
