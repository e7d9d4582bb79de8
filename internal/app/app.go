// Package app wires the bot together: config, logging, event feed, store,
// session, broadcast engine, command surface, and the role sync job.
package app

import (
	"context"
	"errors"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"rolebot/internal/broadcast"
	"rolebot/internal/commands"
	"rolebot/internal/config"
	"rolebot/internal/directory"
	"rolebot/internal/eventlog"
	"rolebot/internal/gateway/discord"
	"rolebot/internal/logging"
	"rolebot/internal/session"
	"rolebot/internal/store"
	"rolebot/internal/syncjob"
)

type App struct {
	cfgm     *config.Manager
	log      zerolog.Logger
	logClose func()

	feed   *eventlog.Feed
	sess   *session.Service
	engine *broadcast.Engine
	dir    *directory.Directory

	st   store.Store
	sync *syncjob.Service

	watchCancel context.CancelFunc
	wg          sync.WaitGroup
}

// New loads configuration and builds every service that does not need I/O.
// Store connection and session login happen in Start.
func New(cfgPath string) (*App, error) {
	// Optional .env next to the binary; env vars override the file either way.
	_ = godotenv.Load()

	cfgm := config.NewManager(cfgPath, zerolog.Nop())
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log, logClose, err := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}
	cfgm.SetLogger(log.With().Str("component", "config").Logger())

	feed := eventlog.New(
		log.With().Str("component", "eventlog").Logger(),
		eventlog.WithCapacity(cfg.EventLog.Capacity),
		eventlog.WithConsoleEcho(cfg.EventLog.Console),
	)

	sess := session.New(cfg.Discord, discord.Dial, feed,
		log.With().Str("component", "session").Logger())

	engine := broadcast.New(broadcast.Config{
		Workers:     cfg.Broadcast.Workers,
		RatePerSec:  cfg.Broadcast.RatePerSec,
		SendTimeout: cfg.Broadcast.SendTimeout.Std(),
		Deadline:    cfg.Broadcast.Deadline.Std(),
	}, sess, feed, log.With().Str("component", "broadcast").Logger())

	dir := directory.New(sess, feed, log.With().Str("component", "directory").Logger())

	return &App{
		cfgm:     cfgm,
		log:      log.With().Str("component", "app").Logger(),
		logClose: logClose,
		feed:     feed,
		sess:     sess,
		engine:   engine,
		dir:      dir,
	}, nil
}

// Feed exposes the operator event feed.
func (a *App) Feed() *eventlog.Feed { return a.feed }

// Session exposes the session lifecycle service.
func (a *App) Session() *session.Service { return a.sess }

// Directory exposes the role directory.
func (a *App) Directory() *directory.Directory { return a.dir }

// Store exposes the persistence gateway; nil when disabled or unreachable.
func (a *App) Store() store.Store { return a.st }

// Start connects the store, opens the session, registers the command
// surface, and launches the sync job and config watcher. A missing database
// or failed login degrades the bot instead of aborting it.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()

	st, err := store.Open(ctx, cfg.Storage, a.feed, a.log)
	switch {
	case errors.Is(err, store.ErrDisabled):
		a.log.Info().Msg("persistence disabled by config")
	case err != nil:
		// Demo mode without history: every runtime feature still works.
		a.log.Error().Err(err).Msg("store unavailable; continuing without persistence")
	}
	a.st = st

	cmds := commands.New(cfg.Discord.CommandPrefix, a.sess, a.engine, a.st, a.feed,
		a.log.With().Str("component", "commands").Logger())
	cmds.Register()

	if err := a.sess.Start(ctx); err != nil {
		// Logged and fed by the session service; the bot stays up offline.
		a.log.Warn().Msg("session start failed; running degraded")
	}

	a.sync = syncjob.New(syncjob.Config{
		Enabled: cfg.Sync.Enabled,
		Spec:    cfg.Sync.Spec,
	}, a.sess, a.st, a.feed, a.log.With().Str("component", "syncjob").Logger())
	if err := a.sync.Start(ctx); err != nil {
		a.log.Error().Err(err).Msg("sync job disabled")
	}

	a.startConfigWatch()

	a.feed.Record(eventlog.KindSystem, "Bot started successfully")
	return nil
}

// startConfigWatch hot-applies broadcast and platform settings on config
// file changes. Structural changes (storage driver, log sinks) need a
// process restart.
func (a *App) startConfigWatch() {
	wctx, cancel := context.WithCancel(context.Background())
	a.watchCancel = cancel

	sub := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(wctx); err != nil {
			a.log.Warn().Err(err).Msg("config watch unavailable")
		}
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.engine.Apply(broadcast.Config{
					Workers:     cfg.Broadcast.Workers,
					RatePerSec:  cfg.Broadcast.RatePerSec,
					SendTimeout: cfg.Broadcast.SendTimeout.Std(),
					Deadline:    cfg.Broadcast.Deadline.Std(),
				})
				a.sess.Apply(cfg.Discord)
				a.log.Info().Msg("runtime config applied")
			}
		}
	}()
}

// Stop shuts everything down in reverse start order.
func (a *App) Stop(ctx context.Context) error {
	if a.watchCancel != nil {
		a.watchCancel()
	}
	if a.sync != nil {
		a.sync.Stop(ctx)
	}
	a.sess.Stop(ctx)
	if a.st != nil {
		if err := a.st.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("store close failed")
		}
	}
	a.wg.Wait()
	a.logClose()
	return nil
}
