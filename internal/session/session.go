// Package session owns the single chat-platform connection: start, restart,
// and status reporting. When no usable credential is configured the service
// runs in demo mode: offline, no connection attempt, but start time recorded
// so the rest of the bot keeps working against fixture data.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"rolebot/internal/config"
	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
)

// ErrNotInitialized is returned by operations that need a live session when
// none has been established.
var ErrNotInitialized = errors.New("session not initialized")

type State string

const (
	StateOnline  State = "online"
	StateOffline State = "offline"
)

// Snapshot is a point-in-time status report for operators.
type Snapshot struct {
	State   State  `json:"status"`
	Uptime  string `json:"uptime"`
	Server  string `json:"server"`
	Latency string `json:"latency"`
}

// Service manages the connection lifecycle. Safe for concurrent use.
type Service struct {
	dial gateway.Dialer
	log  zerolog.Logger
	feed *eventlog.Feed

	mu        sync.Mutex
	cfg       config.DiscordConfig
	gw        gateway.Gateway
	handlers  []gateway.MessageHandler
	state     State
	startedAt time.Time
	guild     gateway.Guild
	hasGuild  bool
}

func New(cfg config.DiscordConfig, dial gateway.Dialer, feed *eventlog.Feed, log zerolog.Logger) *Service {
	return &Service{
		dial:  dial,
		log:   log,
		feed:  feed,
		cfg:   cfg,
		state: StateOffline,
	}
}

// OnMessage registers a handler for inbound guild messages. Handlers are
// attached to the gateway on every (re)start, so registration order does not
// depend on connection state.
func (s *Service) OnMessage(h gateway.MessageHandler) {
	s.mu.Lock()
	s.handlers = append(s.handlers, h)
	s.mu.Unlock()
}

// Start opens the session. Without a credential it enters demo mode and
// returns nil. A connect failure marks the service offline, records a
// diagnostic, and returns the error; the initial boot path treats that as
// non-fatal while Restart surfaces it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Service) startLocked(ctx context.Context) error {
	if !s.cfg.HasCredential() {
		s.state = StateOffline
		s.startedAt = time.Now()
		s.gw = nil
		s.hasGuild = false
		s.log.Warn().Msg("discord token not set or placeholder; running in demo mode")
		s.feed.Record(eventlog.KindInfo, "Discord token not set. Running in demo mode.")
		return nil
	}

	gw, err := s.dial(s.cfg.Token)
	if err != nil {
		return s.failLocked(fmt.Errorf("dial: %w", err))
	}
	for _, h := range s.handlers {
		gw.OnMessage(h)
	}
	if err := gw.Open(ctx); err != nil {
		return s.failLocked(fmt.Errorf("open: %w", err))
	}

	s.gw = gw
	s.state = StateOnline
	s.startedAt = time.Now()
	s.feed.Recordf(eventlog.KindSuccess, "Logged in as %s", gw.SelfTag())
	s.log.Info().Str("account", gw.SelfTag()).Msg("session online")

	if s.cfg.Activity != "" {
		if err := gw.SetPresence(s.cfg.Activity); err != nil {
			s.feed.Recordf(eventlog.KindError, "Failed to set status: %s", err)
		} else {
			s.feed.Recordf(eventlog.KindInfo, "Bot status set to: %s", s.cfg.Activity)
		}
	}

	// The bot operates against the first available server context.
	s.hasGuild = false
	if guilds, err := gw.Guilds(ctx); err == nil && len(guilds) > 0 {
		s.guild = guilds[0]
		s.hasGuild = true
		s.log.Info().Str("guild", s.guild.Name).Msg("active server selected")
	}
	return nil
}

func (s *Service) failLocked(err error) error {
	s.state = StateOffline
	s.gw = nil
	s.hasGuild = false
	s.feed.Recordf(eventlog.KindError, "Failed to start Discord client: %s", err)
	s.feed.Record(eventlog.KindInfo, "Application running in demo mode. Add a Discord token to connect to a real bot.")
	s.log.Error().Err(err).Msg("session start failed")
	return err
}

// Restart tears down any existing session and starts again. Unlike the
// initial boot, a failed restart with a configured credential is surfaced.
func (s *Service) Restart(ctx context.Context) error {
	s.feed.Record(eventlog.KindInfo, "Attempting to restart Discord client...")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(ctx)
	if err := s.startLocked(ctx); err != nil {
		s.feed.Recordf(eventlog.KindError, "Failed to restart Discord client: %s", err)
		return err
	}
	s.feed.Record(eventlog.KindSuccess, "Discord client restarted successfully")
	return nil
}

// Stop closes the session if one is open.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(ctx)
	s.state = StateOffline
}

func (s *Service) closeLocked(ctx context.Context) {
	if s.gw == nil {
		return
	}
	if err := s.gw.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("session close failed")
	}
	s.gw = nil
	s.hasGuild = false
}

// Apply swaps the platform configuration. Takes effect on the next
// start/restart.
func (s *Service) Apply(cfg config.DiscordConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Connected reports whether a live gateway is attached.
func (s *Service) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gw != nil
}

// Gateway returns the live gateway, or false when the session is demo/offline.
func (s *Service) Gateway() (gateway.Gateway, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gw == nil {
		return nil, false
	}
	return s.gw, true
}

// ActiveGuild returns the selected server context.
func (s *Service) ActiveGuild() (gateway.Guild, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.guild, s.hasGuild
}

// Status reports the operator-facing view of the session.
func (s *Service) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:   s.state,
		Uptime:  "N/A",
		Server:  "None",
		Latency: "N/A",
	}
	if !s.startedAt.IsZero() {
		snap.Uptime = FormatUptime(time.Since(s.startedAt))
	}
	if s.hasGuild {
		snap.Server = s.guild.Name
	}
	if s.gw != nil {
		snap.Latency = fmt.Sprintf("%dms", s.gw.Latency().Milliseconds())
	}
	return snap
}
