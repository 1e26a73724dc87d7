package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"clinic-queue-backend/config"
	"clinic-queue-backend/internal/api"
	"clinic-queue-backend/internal/auth"
	"clinic-queue-backend/internal/bus"
	"clinic-queue-backend/internal/clock"
	"clinic-queue-backend/internal/db"
	"clinic-queue-backend/internal/directory"
	"clinic-queue-backend/internal/metrics"
	"clinic-queue-backend/internal/notification"
	"clinic-queue-backend/internal/queue"
	"clinic-queue-backend/internal/reconciler"
	"clinic-queue-backend/internal/store"
)

// app is the wired service shared by the serve and sweep commands.
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	db         *gorm.DB
	store      store.Store
	hub        *bus.Hub
	redis      *redis.Client
	relay      *bus.RedisRelay
	push       *notification.WorkerPool
	webpush    *webpush.Options
	engine     *queue.Engine
	reconciler *reconciler.Service
	metrics    *metrics.Metrics
	wg         sync.WaitGroup
	stopPush   context.CancelFunc
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if cfg.Server.JWTSecret == "" {
		return nil, fmt.Errorf("server.jwt_secret must be configured")
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	a := &app{
		cfg:     cfg,
		log:     logger,
		db:      gormDB,
		hub:     bus.NewHub(cfg.Bus.SubscriberBuffer),
		metrics: metrics.New(),
		store: store.NewGormStore(gormDB, store.Options{
			OpTimeout:          cfg.Store.OpTimeout,
			AllocationAttempts: cfg.Store.AllocationAttempts,
		}),
	}

	publishers := []bus.Publisher{a.hub}

	if cfg.Bus.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Bus.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid bus.redis_url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		a.relay = bus.NewRedisRelay(a.redis, cfg.Bus.RedisChannel, a.hub, logger)
		publishers = append(publishers, a.relay)
		logger.Info().Str("channel", cfg.Bus.RedisChannel).Msg("redis bus relay enabled")
	}

	// Web push is optional; without VAPID keys patients only get websocket events.
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		a.webpush = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		a.push = notification.NewWorkerPool(cfg.WorkerPool.Size, a.store, a.webpush, logger)
		publishers = append(publishers, a.push)
	} else {
		logger.Warn().Msg("VAPID keys are not configured, web push disabled")
	}

	dir := directory.NewCached(
		directory.NewGormDirectory(gormDB, cfg.Store.OpTimeout, logger),
		time.Duration(cfg.Directory.CacheTTLSeconds)*time.Second,
	)

	a.engine = queue.New(queue.Deps{
		Store:      a.store,
		Directory:  dir,
		Authorizer: auth.RolePolicy{},
		Bus:        bus.Tee(publishers...),
		Clock:      clock.System(),
		Metrics:    a.metrics,
		Log:        logger,
	}, queue.OptionsFromConfig(cfg.Queue))

	a.reconciler = reconciler.NewService(cfg.Reconciler, cfg.Queue.Location, a.store, a.engine, clock.System(), a.metrics, logger)
	return a, nil
}

// Start launches the background workers. The reconciler and relay stop when
// ctx is cancelled; push workers outlive ctx until Drain.
func (a *app) Start(ctx context.Context) {
	if a.push != nil {
		pushCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
		a.stopPush = stop
		a.push.Start(pushCtx)
	}
	if a.relay != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.relay.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("redis bus relay stopped")
			}
		}()
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.reconciler.Run(ctx)
	}()
}

// Wait blocks until the background workers have returned.
func (a *app) Wait() { a.wg.Wait() }

// Drain waits for the reconciler and relay, whose ctx must already be
// cancelled, then flushes queued web pushes and stops the push workers.
func (a *app) Drain(timeout time.Duration) {
	a.Wait()
	a.FlushPush(timeout)
	if a.stopPush != nil {
		a.stopPush()
	}
}

// FlushPush gives queued web pushes a bounded chance to go out.
func (a *app) FlushPush(timeout time.Duration) {
	if a.push == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.push.Flush(ctx); err != nil {
		a.log.Warn().Err(err).Msg("pending push notifications abandoned")
	}
}

func (a *app) routerDeps() api.RouterDeps {
	sqlDB, _ := a.db.DB()
	return api.RouterDeps{
		Handler:    api.NewHandler(a.engine, a.store, a.webpush, a.log),
		Hub:        a.hub,
		Authorizer: auth.RolePolicy{},
		Metrics:    a.metrics,
		Health: func(ctx context.Context) error {
			if sqlDB == nil {
				return fmt.Errorf("database handle unavailable")
			}
			return sqlDB.PingContext(ctx)
		},
		Log: a.log,
	}
}

// Close releases the database and redis connections.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing redis client")
		}
	}
	if sqlDB, err := a.db.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.log.Warn().Err(err).Msg("closing database")
		}
	}
}
