// Package daemon composes the application with fx: providers for every
// component plus the lifecycle hooks that start and stop them in order.
package daemon

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/cesar59xxx/eeeeeeee/internal/bus"
	"github.com/cesar59xxx/eeeeeeee/internal/client"
	"github.com/cesar59xxx/eeeeeeee/internal/config"
	"github.com/cesar59xxx/eeeeeeee/internal/contacts"
	"github.com/cesar59xxx/eeeeeeee/internal/httpapi"
	"github.com/cesar59xxx/eeeeeeee/internal/hub"
	"github.com/cesar59xxx/eeeeeeee/internal/lock"
	"github.com/cesar59xxx/eeeeeeee/internal/logging"
	"github.com/cesar59xxx/eeeeeeee/internal/manager"
	"github.com/cesar59xxx/eeeeeeee/internal/paths"
	"github.com/cesar59xxx/eeeeeeee/internal/relay"
	"github.com/cesar59xxx/eeeeeeee/internal/store"
)

// Params holds the resolved daemon configuration passed to the fx module.
type Params struct {
	Config *config.Config
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideFactory,
			provideResolver,
			provideRelay,
			provideManager,
			provideHub,
			provideServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := paths.EnsureDataDir(p.Config.DataDir); err != nil {
		return nil, err
	}
	return logging.New(paths.LogPath(p.Config.DataDir))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring data dir lock", zap.String("dir", p.Config.DataDir))
	l, err := lock.Acquire(p.Config.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.DBPath(p.Config.DataDir)
	db, err := store.Open(dbPath)
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

func provideFactory(p Params, logger *zap.Logger) client.Factory {
	return client.NewWhatsmeowFactory(p.Config.DataDir, logger)
}

func provideResolver(db *store.DB, logger *zap.Logger) *contacts.Resolver {
	return contacts.NewResolver(db, logger)
}

func provideRelay(db *store.DB, logger *zap.Logger) *relay.Relay {
	return relay.New(db, logger)
}

func provideManager(p Params, db *store.DB, resolver *contacts.Resolver, rl *relay.Relay, b *bus.Bus, factory client.Factory, logger *zap.Logger) *manager.Manager {
	return manager.New(db, resolver, rl, b, factory, logger, manager.Options{
		ReconnectDelay:       p.Config.ReconnectDelay(),
		MaxReconnectAttempts: p.Config.MaxReconnectAttempts,
	})
}

func provideHub(p Params, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(b, logger, p.Config.AllowedOrigins)
}

func provideServer(p Params, mgr *manager.Manager, h *hub.Hub, logger *zap.Logger) *httpapi.Server {
	return httpapi.New(p.Config.HTTPAddr, mgr, h, logger, p.Config.AllowedOrigins)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *httpapi.Server, mgr *manager.Manager, h *hub.Hub, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	hubCtx, stopHub := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go h.Run(hubCtx)

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			logger.Info("http server listening", zap.String("addr", p.Config.HTTPAddr))

			// Resume connections for sessions that were live at last stop.
			go mgr.ResumeActive(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down")

			mgr.Shutdown()

			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown error", zap.Error(err))
			}
			stopHub()

			if err := db.Close(); err != nil {
				logger.Warn("store close error", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("lock release error", zap.Error(err))
			}
			logger.Info("shutdown complete")
			return nil
		},
	})
}
