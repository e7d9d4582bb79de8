// Package syncjob periodically snapshots the active server and its roles
// into the document store, so listings and history survive restarts.
package syncjob

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"rolebot/internal/eventlog"
	"rolebot/internal/session"
	"rolebot/internal/store"
)

type Config struct {
	Enabled bool
	// Spec is a cron spec or @every interval.
	Spec string
}

type Service struct {
	cfg  Config
	sess *session.Service
	st   store.Store
	feed *eventlog.Feed
	log  zerolog.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, sess *session.Service, st store.Store, feed *eventlog.Feed, log zerolog.Logger) *Service {
	return &Service{cfg: cfg, sess: sess, st: st, feed: feed, log: log}
}

// Start schedules the periodic sync and runs one immediately. A nil store
// or disabled config makes Start a no-op.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.Enabled || s.st == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(s.cfg.Spec, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("syncjob: bad schedule %q: %w", s.cfg.Spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info().Str("spec", s.cfg.Spec).Msg("role sync scheduled")

	go s.RunOnce(ctx)
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// RunOnce persists the current server and role snapshot. Demo mode is a
// quiet no-op; storage failures are surfaced by the store and logged here.
func (s *Service) RunOnce(ctx context.Context) {
	gw, ok := s.sess.Gateway()
	if !ok {
		return
	}
	guild, ok := s.sess.ActiveGuild()
	if !ok {
		return
	}

	if _, err := s.st.SaveServer(ctx, store.Server{ServerID: guild.ID, Name: guild.Name}); err != nil {
		s.log.Error().Err(err).Msg("server sync failed")
		return
	}

	roles, err := gw.Roles(ctx, guild.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("role sync failed")
		return
	}
	saved := 0
	for _, r := range roles {
		if r.Everyone || r.Managed {
			continue
		}
		_, err := s.st.SaveRole(ctx, store.Role{
			RoleID:      r.ID,
			ServerID:    guild.ID,
			Name:        r.Name,
			MemberCount: r.MemberCount,
		})
		if err != nil {
			s.log.Error().Err(err).Str("role", r.ID).Msg("role sync failed")
			continue
		}
		saved++
	}
	s.feed.Recordf(eventlog.KindInfo, "Synced %d roles for server %s", saved, guild.Name)
}
