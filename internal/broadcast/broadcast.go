// Package broadcast delivers a message to every member of a role and
// reports an exact success/failure tally.
//
// Contract:
//   - Membership is a snapshot taken at call time.
//   - Every attempt is independent; one failure never aborts the rest.
//   - success + failed always equals the snapshot size.
//   - Broadcast returns only after every attempt has resolved.
//
// Fan-out is bounded by a worker cap, a shared rate limiter, a per-delivery
// timeout, and an overall deadline, so a large role cannot exhaust the
// process or hammer the platform.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"rolebot/internal/eventlog"
	"rolebot/internal/gateway"
	"rolebot/internal/session"
)

// Result is the tally of one broadcast.
type Result struct {
	SuccessCount int `json:"successCount"`
	FailedCount  int `json:"failedCount"`
}

type Config struct {
	Workers     int
	RatePerSec  int
	SendTimeout time.Duration
	Deadline    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 10
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 10 * time.Second
	}
	if c.Deadline <= 0 {
		c.Deadline = 5 * time.Minute
	}
	return c
}

type Engine struct {
	sess *session.Service
	feed *eventlog.Feed
	log  zerolog.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, sess *session.Service, feed *eventlog.Feed, log zerolog.Logger) *Engine {
	e := &Engine{sess: sess, feed: feed, log: log}
	e.Apply(cfg)
	return e
}

// Apply swaps the fan-out settings. In-flight broadcasts keep the settings
// they started with.
func (e *Engine) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	e.mu.Lock()
	e.cfg = cfg
	e.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	e.mu.Unlock()
}

// Broadcast sends message to every member currently holding roleID in the
// active server. Preconditions fail fast; per-recipient failures only move
// the tally.
func (e *Engine) Broadcast(ctx context.Context, roleID, message string) (Result, error) {
	gw, ok := e.sess.Gateway()
	if !ok {
		return Result{}, session.ErrNotInitialized
	}
	guild, ok := e.sess.ActiveGuild()
	if !ok {
		return Result{}, gateway.ErrNoGuild
	}

	members, err := gw.RoleMembers(ctx, guild.ID, roleID)
	if err != nil {
		e.feed.Recordf(eventlog.KindError, "Error sending DMs: %s", err)
		return Result{}, fmt.Errorf("resolve role %s: %w", roleID, err)
	}

	e.mu.Lock()
	cfg := e.cfg
	limiter := e.limiter
	e.mu.Unlock()

	e.feed.Recordf(eventlog.KindInfo, "Sending DMs to %d members of role %s", len(members), roleID)

	bctx, cancel := context.WithTimeout(ctx, cfg.Deadline)
	defer cancel()

	var (
		tallyMu sync.Mutex
		tally   Result
		wg      sync.WaitGroup
	)
	succeed := func(m gateway.Member) {
		tallyMu.Lock()
		tally.SuccessCount++
		tallyMu.Unlock()
		e.feed.Recordf(eventlog.KindSuccess, "DM sent to %s", memberTag(m))
	}
	fail := func(m gateway.Member, err error) {
		tallyMu.Lock()
		tally.FailedCount++
		tallyMu.Unlock()
		e.feed.Recordf(eventlog.KindError, "Failed to DM %s", memberTag(m))
		e.log.Debug().Err(err).Str("member", m.ID).Msg("dm delivery failed")
	}

	sem := make(chan struct{}, cfg.Workers)
	for _, m := range members {
		wg.Add(1)
		go func(m gateway.Member) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-bctx.Done():
				fail(m, bctx.Err())
				return
			}
			if err := limiter.Wait(bctx); err != nil {
				fail(m, err)
				return
			}
			sctx, scancel := context.WithTimeout(bctx, cfg.SendTimeout)
			err := gw.SendDM(sctx, m.ID, message)
			scancel()
			if err != nil {
				fail(m, err)
				return
			}
			succeed(m)
		}(m)
	}
	wg.Wait()

	e.feed.Recordf(eventlog.KindSystem,
		"Broadcast to role %s complete: %d sent, %d failed", roleID, tally.SuccessCount, tally.FailedCount)
	e.log.Info().
		Str("role", roleID).
		Int("sent", tally.SuccessCount).
		Int("failed", tally.FailedCount).
		Msg("broadcast complete")
	return tally, nil
}

// memberTag renders a member the way the platform displays it.
func memberTag(m gateway.Member) string {
	if m.Discriminator != "" && m.Discriminator != "0" {
		return m.Username + "#" + m.Discriminator
	}
	return m.Username
}
