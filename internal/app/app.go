// Package app wires configuration, storage, the epoch engine and its
// operational surfaces into one runnable daemon.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trancheworks/pool-engine/internal/api"
	"github.com/trancheworks/pool-engine/internal/config"
	"github.com/trancheworks/pool-engine/internal/nav"
	"github.com/trancheworks/pool-engine/internal/notify"
	"github.com/trancheworks/pool-engine/internal/orders"
	"github.com/trancheworks/pool-engine/internal/permissions"
	"github.com/trancheworks/pool-engine/internal/pool"
	"github.com/trancheworks/pool-engine/internal/recorder"
	"github.com/trancheworks/pool-engine/internal/scheduler"
)

// systemClock maps wall-clock time onto the engine's seconds and
// block numbers. Blocks advance at a fixed cadence from genesis.
type systemClock struct {
	genesis   time.Time
	blockTime time.Duration
}

func (c systemClock) NowSeconds() uint64 { return uint64(time.Now().Unix()) }

func (c systemClock) BlockNumber() uint64 {
	return uint64(time.Since(c.genesis) / c.blockTime)
}

// App owns the engine and its supporting services.
type App struct {
	cfg config.Config
	log *zap.Logger

	Store     *pool.Store
	Book      *orders.Book
	Oracle    *nav.StaticOracle
	Perms     *permissions.Registry
	Engine    *pool.Engine
	Recorder  recorder.Recorder
	Scheduler *scheduler.Scheduler

	apiServer *api.Server
}

// New builds the full service graph and registers the configured
// pools. Valuations start at zero until an oracle update arrives.
func New(cfg config.Config, log *zap.Logger) (*App, error) {
	clock := systemClock{genesis: time.Now(), blockTime: cfg.Engine.BlockTime}
	store := pool.NewStore()
	book := orders.NewBook()
	oracle := nav.NewStaticOracle(clock)
	perms := permissions.NewRegistry()
	engine := pool.NewEngine(store, book, oracle, perms, clock, cfg.Engine.ChallengeBlocks)

	var rec recorder.Recorder = recorder.NewNoop()
	if cfg.Database.Path != "" {
		sqlite, err := recorder.NewSQLite(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open recorder: %w", err)
		}
		rec = sqlite
		log.Info("sqlite recorder opened", zap.String("path", cfg.Database.Path))
	}

	a := &App{
		cfg:      cfg,
		log:      log,
		Store:    store,
		Book:     book,
		Oracle:   oracle,
		Perms:    perms,
		Engine:   engine,
		Recorder: rec,
	}

	for _, pc := range cfg.Pools {
		id := pool.PoolID(pc.ID)
		if err := engine.CreatePool(id, pc.TrancheInputs(), pc.MaxReserve, pc.Parameters()); err != nil {
			rec.Close()
			return nil, fmt.Errorf("create pool %d: %w", pc.ID, err)
		}
		oracle.Update(id, 0)
		log.Info("pool registered",
			zap.Uint64("pool", pc.ID),
			zap.Int("tranches", len(pc.Tranches)),
			zap.Uint64("max_reserve", pc.MaxReserve))
	}

	notifier := notify.NewNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if notifier.Enabled() {
		log.Info("telegram notifications enabled")
	}
	a.Scheduler = scheduler.New(engine, store, rec, notifier, log)
	if err := a.Scheduler.Register(cfg.Schedule.CloseCron, cfg.Schedule.ExecuteCron); err != nil {
		rec.Close()
		return nil, err
	}

	if cfg.API.Enabled {
		a.apiServer = api.NewServer(cfg.API.Addr, engine, store, book, oracle, rec, log)
	}
	return a, nil
}

// Run starts the API and scheduler and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if a.apiServer != nil {
		if err := a.apiServer.Start(ctx); err != nil {
			return fmt.Errorf("start api: %w", err)
		}
	}
	a.Scheduler.Start()
	a.log.Info("pool engine running", zap.Int("pools", len(a.cfg.Pools)))

	<-ctx.Done()
	return ctx.Err()
}

// Shutdown stops the scheduler, the API server and the recorder.
func (a *App) Shutdown(ctx context.Context) {
	a.Scheduler.Stop()
	if a.apiServer != nil {
		if err := a.apiServer.Shutdown(ctx); err != nil {
			a.log.Error("api shutdown", zap.Error(err))
		}
	}
	if err := a.Recorder.Close(); err != nil {
		a.log.Error("recorder close", zap.Error(err))
	}
	a.log.Info("pool engine stopped")
}

// NewLogger builds a production logger at the configured level.
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
