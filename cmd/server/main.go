// Package main is the entry point of the application
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/blitz-server/internal/auth"
	"github.com/tecu23/blitz-server/pkg/broadcast"
	"github.com/tecu23/blitz-server/pkg/bus"
	"github.com/tecu23/blitz-server/pkg/chess"
	"github.com/tecu23/blitz-server/pkg/config"
	"github.com/tecu23/blitz-server/pkg/events"
	"github.com/tecu23/blitz-server/pkg/game"
	"github.com/tecu23/blitz-server/pkg/manager"
	"github.com/tecu23/blitz-server/pkg/matchmaking"
	"github.com/tecu23/blitz-server/pkg/repository"
	"github.com/tecu23/blitz-server/pkg/server"
	"github.com/tecu23/blitz-server/pkg/session"
)

const startupTimeout = 10 * time.Second

// application encapsulates global dependencies
type application struct {
	Auth      *auth.APIKeyAuth
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Manager   *manager.Manager
	Hub       *server.Hub
	Bus       bus.Bus

	closers   []io.Closer
	StartTime time.Time
}

func main() {
	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	if cfg.EphemeralSecret {
		logger.Warn("TOKEN_SECRET not set, guest tokens will not survive a restart")
	}

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Fatal("startup error", zap.Error(err))
	}

	go app.Hub.Run()

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// newApplication wires every component. The hub is not started.
func newApplication(cfg *config.Config, logger *zap.Logger) (*application, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	app := &application{
		Auth:      auth.NewAPIKeyAuth(cfg.APIKeys),
		Logger:    logger,
		Config:    cfg,
		Publisher: events.NewPublisher(),
		StartTime: time.Now(),
	}

	tokens, err := auth.NewTokens(cfg.TokenSecret, cfg.GuestTokenTTL)
	if err != nil {
		return nil, err
	}

	persistence, err := app.openRepository(ctx)
	if err != nil {
		app.closeAll()
		return nil, err
	}

	app.Bus, err = app.openBus(ctx)
	if err != nil {
		app.closeAll()
		return nil, err
	}

	if cfg.Debug {
		app.Publisher.SubscribeAll(func(e events.Event) {
			logger.Debug("event", zap.String("type", string(e.Type)), zap.String("game_id", e.GameID), zap.Any("payload", e.Payload))
		})
	}
	app.Publisher.Subscribe(events.EventPersistenceFailed, func(e events.Event) {
		logger.Warn("game result not persisted", zap.String("game_id", e.GameID))
	})

	registry := session.NewRegistry(tokens, logger)
	app.Hub = server.NewHub(server.Options{PairInterval: cfg.PairInterval, SweepInterval: cfg.SweepInterval}, logger)

	app.Manager, err = manager.NewManager(manager.Deps{
		Loop:        app.Hub,
		Registry:    registry,
		Queue:       matchmaking.NewQueue(),
		Store:       game.NewStore(),
		Router:      broadcast.NewRouter(registry, app.Bus, cfg.InstanceID, logger),
		Rules:       chess.NewRules(),
		Persistence: persistence,
		Events:      app.Publisher,
		Bus:         app.Bus,
		Logger:      logger,
	}, managerOptions(cfg))
	if err != nil {
		app.closeAll()
		return nil, err
	}
	app.Hub.Attach(app.Manager)

	err = app.Bus.Subscribe(ctx, func(msg bus.Message) {
		app.Hub.Post(func() { app.Manager.OnBusMessage(msg) })
	})
	if err != nil {
		app.closeAll()
		return nil, fmt.Errorf("subscribe to bus: %w", err)
	}

	return app, nil
}

func managerOptions(cfg *config.Config) manager.Options {
	opts := manager.DefaultOptions()
	opts.GracePeriod = cfg.GracePeriod
	opts.DisconnectGrace = cfg.DisconnectGrace
	opts.DeadlineBuffer = cfg.DeadlineBuffer
	opts.RematchWindow = cfg.RematchWindow
	opts.PersistTimeout = cfg.PersistTimeout
	opts.IdleTimeout = cfg.IdleTimeout
	opts.TimeControls = cfg.TimeControls
	opts.Variant = chess.Variant(cfg.Variant)
	opts.DefaultRating = cfg.DefaultRating
	opts.DefaultRD = cfg.DefaultRD
	opts.MaxChatLength = cfg.MaxChatLength
	opts.InstanceID = cfg.InstanceID
	return opts
}

func (app *application) openRepository(ctx context.Context) (manager.Persistence, error) {
	if app.Config.DatabaseURL == "" {
		app.Logger.Info("no database configured, keeping games in memory")
		return repository.NewInMemoryRepository(app.Logger, nil), nil
	}

	repo, err := repository.NewPostgresRepository(ctx, app.Config.DatabaseURL, app.Logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, repo)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (app *application) openBus(ctx context.Context) (bus.Bus, error) {
	var (
		b   bus.Bus
		err error
	)
	switch app.Config.BusDriver {
	case config.BusRedis:
		b, err = bus.DialRedis(ctx, app.Config.RedisURL, app.Logger)
	case config.BusNATS:
		b, err = bus.DialNATS(app.Config.NATSURL, app.Logger)
	default:
		b = bus.NewLocal()
	}
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, b)
	app.Logger.Info("tournament bus ready", zap.String("driver", app.Config.BusDriver), zap.String("instance_id", app.Config.InstanceID))
	return b, nil
}

func (app *application) closeAll() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Hub != nil {
		app.Hub.Shutdown()
	}
	if err := app.closeAll(); err != nil {
		app.Logger.Warn("closing backends", zap.Error(err))
	}
	app.Publisher.Wait()

	app.Logger.Info("All components shut down successfully")
}
