package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pollservice "livepoll/contexts/live-polling/poll-service"
	postgresadapter "livepoll/contexts/live-polling/poll-service/adapters/postgres"
	redisadapter "livepoll/contexts/live-polling/poll-service/adapters/redis"
	"livepoll/contexts/live-polling/poll-service/application/workers"
	"livepoll/contexts/live-polling/poll-service/ports"
	"livepoll/internal/platform/cache"
	"livepoll/internal/platform/config"
	"livepoll/internal/platform/db"
	"livepoll/internal/platform/httpserver"
	"livepoll/internal/platform/messaging"
	"livepoll/internal/platform/session"

	"github.com/gorilla/securecookie"
	"github.com/juju/clock"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const (
	shutdownTimeout   = 10 * time.Second
	voteRetryDelay    = 10 * time.Millisecond
	sessionHashKeyLen = 32
)

type APIApp struct {
	server           *httpserver.Server
	bus              *messaging.Bus
	stores           *stores
	reconciler       workers.ScoreReconciler
	reconcileOnStart bool
	// reconcileEvery drives an in-process reconcile loop whose repairs reach
	// this process's live viewers. Zero disables it.
	reconcileEvery time.Duration
	logger         *slog.Logger
}

type WorkerApp struct {
	stores       *stores
	reconciler   workers.ScoreReconciler
	pollInterval time.Duration
	logger       *slog.Logger
}

// stores holds the backing connections shared by both processes.
type stores struct {
	postgres *db.Postgres
	redis    *cache.Redis
	ledger   *postgresadapter.Repository
	scores   ports.ScoreStore
}

func (s *stores) close() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.redis.Close(), s.postgres.Close())
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")
	backing, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	sessions, err := buildSessions(cfg, logger)
	if err != nil {
		_ = backing.close()
		return nil, err
	}

	bus := messaging.NewBus(cfg.BusSubscriberBuffer, logger)
	module := pollservice.NewModule(pollservice.Dependencies{
		Polls:            backing.ledger,
		Votes:            backing.ledger,
		Scores:           backing.scores,
		Bus:              bus,
		Clock:            clock.WallClock,
		IDGen:            postgresadapter.UUIDGenerator{},
		ConflictAttempts: cfg.VoteConflictRetries,
		RetryDelay:       voteRetryDelay,
		Logger:           logger,
	})

	server := httpserver.New(module, sessions, logger, httpserver.Options{
		Addr:          normalizeAddr(cfg.HTTPPort),
		AllowedOrigin: cfg.CORSAllowedOrigin,
	})
	return &APIApp{
		server:           server,
		bus:              bus,
		stores:           backing,
		reconciler:       module.Reconciler,
		reconcileOnStart: cfg.ReconcileOnStart,
		reconcileEvery:   apiReconcileInterval(cfg),
		logger:           logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")
	backing, err := connectStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	interval := cfg.ReconcileInterval
	if interval <= 0 {
		interval = time.Minute
	}
	// The worker owns no live viewers, so its repairs publish nothing; they
	// show up on the next poll read or vote event.
	return &WorkerApp{
		stores: backing,
		reconciler: workers.ScoreReconciler{
			Polls:  backing.ledger,
			Votes:  backing.ledger,
			Scores: backing.scores,
			Logger: logger,
		},
		pollInterval: interval,
		logger:       logger,
	}, nil
}

// connectStores opens the ledger and picks the score store: Redis when
// REDIS_ADDR is set, the ledger's option_scores table otherwise.
func connectStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (*stores, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}

	pg, err := db.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	ledger := postgresadapter.NewRepository(pg.DB, logger)
	if err := ledger.Migrate(ctx); err != nil {
		_ = pg.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	backing := &stores{
		postgres: pg,
		ledger:   ledger,
		scores:   ledger,
	}
	if cfg.RedisAddr == "" {
		logger.Warn("redis not configured; scores kept in postgres",
			"event", "bootstrap_score_store_postgres",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		return backing, nil
	}

	rdb, err := cache.Connect(ctx, cache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		_ = pg.Close()
		return nil, err
	}
	backing.redis = rdb
	backing.scores = redisadapter.NewScoreStore(rdb.Client, cfg.ScoreKeyPrefix, logger)
	return backing, nil
}

func buildSessions(cfg config.Config, logger *slog.Logger) (*session.Manager, error) {
	hashKey := []byte(cfg.SessionHashKey)
	if len(hashKey) == 0 {
		logger.Warn("SESSION_HASH_KEY not set; sessions will not survive restarts",
			"event", "bootstrap_session_key_generated",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
		hashKey = securecookie.GenerateRandomKey(sessionHashKeyLen)
		if hashKey == nil {
			return nil, errors.New("generate session hash key")
		}
	}
	return session.NewManager(hashKey, []byte(cfg.SessionBlockKey), cfg.SessionCookieSecure, logger)
}

// Run serves HTTP until ctx is cancelled, then drains the server.
func (a *APIApp) Run(ctx context.Context) error {
	if a.reconcileOnStart {
		if err := a.reconciler.RunOnce(ctx); err != nil {
			a.logger.Warn("startup score reconcile failed",
				"event", "bootstrap_reconcile_failed",
				"module", "internal/app/bootstrap",
				"layer", "platform",
				"error", err.Error(),
			)
		}
	}

	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Start()
	}()

	loopCtx, stopLoop := context.WithCancel(ctx)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if a.reconcileEvery > 0 {
			runReconcileLoop(loopCtx, a.reconciler, a.reconcileEvery, false, a.logger)
		}
	}()
	defer func() {
		stopLoop()
		<-loopDone
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serveErr
}

// Close releases resources in dependency order: live streams end with the bus
// before the stores they read from go away.
func (a *APIApp) Close() error {
	var errs []error
	if a.bus != nil {
		errs = append(errs, a.bus.Close())
	}
	errs = append(errs, a.stores.close())
	return errors.Join(errs...)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
	)
	runReconcileLoop(ctx, w.reconciler, w.pollInterval, true, w.logger)
	return nil
}

// runReconcileLoop reconciles every interval until ctx is done, starting with
// an immediate cycle when asked to.
func runReconcileLoop(ctx context.Context, reconciler workers.ScoreReconciler, interval time.Duration, immediate bool, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run := immediate
	for {
		if run {
			if err := reconciler.RunOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Error("score reconcile cycle failed",
					"event", "bootstrap_reconcile_cycle_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}
		run = true
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func apiReconcileInterval(cfg config.Config) time.Duration {
	if !cfg.ReconcileInAPI || cfg.ReconcileInterval <= 0 {
		return 0
	}
	return cfg.ReconcileInterval
}

func (w *WorkerApp) Close() error {
	return w.stores.close()
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
