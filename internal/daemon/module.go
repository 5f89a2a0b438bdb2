// Package daemon wires the sync core into a per-profile daemon with fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/messageai/tacsync/internal/api"
	"github.com/messageai/tacsync/internal/auth"
	"github.com/messageai/tacsync/internal/bus"
	"github.com/messageai/tacsync/internal/config"
	"github.com/messageai/tacsync/internal/lock"
	"github.com/messageai/tacsync/internal/logging"
	"github.com/messageai/tacsync/internal/outbox"
	"github.com/messageai/tacsync/internal/profile"
	"github.com/messageai/tacsync/internal/status"
	"github.com/messageai/tacsync/internal/store"
	intsync "github.com/messageai/tacsync/internal/sync"
)

// Params holds the resolved profile passed to the fx module.
type Params struct {
	Profile string
	Layout  profile.Layout
	// Config is the loaded profile.toml; nil means defaults.
	Config *config.Profile
	// Dev forces the in-memory feed regardless of Config.
	Dev        bool
	SocketPath string // optional override for testing; empty = use default
	Log        logging.Options
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemote,
			provideSession,
			provideProbe,
			provideMediator,
			providePager,
			provideListener,
			provideChatListener,
			provideWorker,
			provideScheduler,
			provideOutbox,
			provideChatService,
			provideMessageService,
			provideSyncService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Profile, error) {
	cfg := p.Config
	if cfg == nil {
		cfg = config.DefaultProfile()
	}
	if p.Dev {
		dev := *cfg
		dev.Remote.Mode = config.ModeMemory
		cfg = &dev
	}
	return cfg, cfg.Validate()
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Layout.LogPath(p.Profile), p.Profile, p.Log)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := p.Layout.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(p.Layout.LockPath(p.Profile), p.Profile)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the cache is never opened without it.
func provideStore(p Params, _ *lock.Lock, b *bus.Bus, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Layout.CachePath(p.Profile)
	db, err := store.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSession(cfg *config.Profile) *auth.Session {
	return auth.NewSession(cfg.UserID)
}

func provideProbe(r *Remote, m *status.Machine, cfg *config.Profile, logger *zap.Logger) *status.Probe {
	return status.NewProbe(r.Pinger, m, cfg.Sync.ProbeInterval.Duration, logger.Named("probe"))
}

func provideMediator(db *store.DB, r *Remote, s *auth.Session, logger *zap.Logger) *intsync.Mediator {
	return intsync.NewMediator(db, r.Feed, s, logger.Named("mediator"))
}

func providePager(db *store.DB, m *intsync.Mediator) *intsync.Pager {
	return intsync.NewPager(db, m)
}

func provideListener(db *store.DB, r *Remote, s *auth.Session, b *bus.Bus, logger *zap.Logger) *intsync.Listener {
	return intsync.NewListener(db, r.Feed, s, b, logger.Named("listener"))
}

func provideChatListener(db *store.DB, r *Remote, s *auth.Session, logger *zap.Logger) *intsync.ChatListener {
	return intsync.NewChatListener(db, r.Chats, s, logger.Named("chats"))
}

func provideWorker(db *store.DB, r *Remote, b *bus.Bus, logger *zap.Logger) *outbox.Worker {
	return outbox.NewWorker(db, r.Feed, b, logger.Named("worker"))
}

func provideScheduler(w *outbox.Worker, m *status.Machine, cfg *config.Profile, logger *zap.Logger) *outbox.Scheduler {
	policy := outbox.Policy{
		InitialBackoff: cfg.Outbox.InitialBackoff.Duration,
		MaxBackoff:     cfg.Outbox.MaxBackoff.Duration,
		MaxAttempts:    cfg.Outbox.MaxAttempts,
	}
	return outbox.NewScheduler(w, m, policy, logger.Named("scheduler"))
}

func provideOutbox(db *store.DB, s *auth.Session, sched *outbox.Scheduler, logger *zap.Logger) *outbox.Outbox {
	return outbox.New(db, s, sched, logger.Named("outbox"))
}

func provideChatService(p Params, db *store.DB) *api.ChatService {
	return api.NewChatService(db, p.Profile)
}

func provideMessageService(p Params, cfg *config.Profile, db *store.DB, m *intsync.Mediator, pg *intsync.Pager, o *outbox.Outbox, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(db, m, pg, o, p.Profile, cfg.Sync.PageSize, logger.Named("api"))
}

func provideSyncService(p Params, cfg *config.Profile, m *status.Machine, s *auth.Session, db *store.DB, pg *intsync.Pager, l *intsync.Listener, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(p.Profile, m, s, db, pg, l, cfg.Sync.PageSize, logger.Named("api"))
}

type lifecycleDeps struct {
	fx.In

	Lifecycle fx.Lifecycle
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Remote    *Remote
	Machine   *status.Machine
	Probe     *status.Probe
	Session   *auth.Session
	Listener  *intsync.Listener
	Chats     *intsync.ChatListener
	Scheduler *outbox.Scheduler
	Outbox    *outbox.Outbox
	Logger    *zap.Logger
}

func registerLifecycle(d lifecycleDeps) {
	runCtx, cancel := context.WithCancel(context.Background())
	logger := d.Logger

	d.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go d.Probe.Run(runCtx)
			go followConnectivity(runCtx, d.Machine, d.Listener, d.Chats, logger)

			// A different user sees different unread counts and chats.
			d.Session.OnChange(func(userID string) {
				d.Listener.Stop()
				if userID == "" {
					d.Chats.Stop()
					logger.Info("signed out, listeners stopped")
					return
				}
				logger.Info("signed in", zap.String("user_id", userID))
				if err := d.Chats.Start(runCtx); err != nil {
					logger.Warn("chat listener start failed", zap.Error(err))
				}
			})

			n, err := d.Outbox.Seed(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("rescheduled queued sends", zap.Int("count", n))
			}

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Server.Stop(ctx)
			cancel()
			d.Scheduler.Stop()
			d.Listener.Stop()
			d.Chats.Stop()
			d.Remote.Close()
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}

// followConnectivity attaches the open chat and the chat list listeners
// whenever the feed is reachable. Both are no-ops while already attached.
func followConnectivity(ctx context.Context, m *status.Machine, l *intsync.Listener, chats *intsync.ChatListener, logger *zap.Logger) {
	for {
		changed := m.Watch()
		if m.Current() == status.Online {
			if err := l.Resume(ctx); err != nil {
				logger.Warn("listener resume failed", zap.String("chat_id", l.Requested()), zap.Error(err))
			}
			if err := chats.Start(ctx); err != nil {
				logger.Warn("chat listener start failed", zap.Error(err))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-changed:
		}
	}
}
