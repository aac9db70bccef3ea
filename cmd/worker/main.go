// Command worker runs every background job: the delivery worker, the
// health prober, the replay engine, reconciliation, and the orphan
// sweeper (spec.md §4.G-§4.J, SPEC_FULL.md §7). It owns no HTTP surface;
// cmd/server handles ingestion and the dashboard API instead.
package main

import (
	"context"
	"encoding/base64"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hookwise/core/breaker"
	"github.com/hookwise/core/pkg/config"
	"github.com/hookwise/core/pkg/logger"
	"github.com/hookwise/core/pkg/pg"
	"github.com/hookwise/core/pkg/queue"
	"github.com/hookwise/core/pkg/ratelimit"
	"github.com/hookwise/core/pkg/redis"
	"github.com/hookwise/core/prober"
	"github.com/hookwise/core/reconcile"
	"github.com/hookwise/core/replay"
	storepg "github.com/hookwise/core/store/pg"
	"github.com/hookwise/core/sweeper"
	"github.com/hookwise/core/transport"
	"github.com/hookwise/core/worker"
)

type appConfig struct {
	SecretsAppKey    string `env:"SECRETS_APP_KEY"`
	ShopifyBaseURL   string `env:"SHOPIFY_BASE_URL"`
	BreakerCacheSize int    `env:"BREAKER_CACHE_SIZE" envDefault:"4096"`
}

const (
	proberTaskName    = "prober/probe"
	reconcileTaskName = "reconcile/pull"
	sweeperTaskName   = "sweeper/sweep"
)

func main() {
	log := logger.New(logger.WithProduction("hookwise-worker"))

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		log.Error("load app config failed", "error", err)
		os.Exit(1)
	}

	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		log.Error("load postgres config failed", "error", err)
		os.Exit(1)
	}

	var redisCfg redis.Config
	if err := config.Load(&redisCfg); err != nil {
		log.Error("load redis config failed", "error", err)
		os.Exit(1)
	}

	var queueCfg queue.Config
	if err := config.Load(&queueCfg); err != nil {
		log.Error("load queue config failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("connect postgres failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		log.Error("connect redis failed", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	store := storepg.New(pool)
	queueRepo := queue.NewPgStore(pool)
	enqueuer, err := queue.NewEnqueuer(queueRepo)
	if err != nil {
		log.Error("build enqueuer failed", "error", err)
		os.Exit(1)
	}

	b := breaker.New(store.Endpoints, store.Deliveries, store.ReplayQueue, cfg.BreakerCacheSize)
	tr := transport.New()

	halfOpenStore := ratelimit.NewMemoryStore()
	halfOpenLimiter, err := ratelimit.NewTokenBucket(halfOpenStore, 1, time.Second)
	if err != nil {
		log.Error("build half-open limiter failed", "error", err)
		os.Exit(1)
	}

	w := worker.New(store.Events, store.Integrations, store.Endpoints, store.Deliveries, b, tr, enqueuer, halfOpenLimiter, log)
	p := prober.New(store.Endpoints, store.Integrations, b, enqueuer, redisClient, log)
	re := replay.New(store.Events, store.Integrations, store.Endpoints, store.Deliveries, store.ReplayQueue, b, tr, log)
	sw := sweeper.New(store.Events, store.Integrations, enqueuer, log)
	rc := buildReconciler(cfg, store, enqueuer, log)

	wk, err := queue.NewWorker(queueRepo,
		queue.WithQueues(queue.DefaultQueueName),
		queue.WithPullInterval(queueCfg.PollInterval),
		queue.WithLockTimeout(queueCfg.LockTimeout),
		queue.WithMaxConcurrentTasks(queueCfg.MaxConcurrentTasks),
		queue.WithWorkerLogger(log),
	)
	if err != nil {
		log.Error("build worker failed", "error", err)
		os.Exit(1)
	}

	if err := wk.RegisterHandlers(
		w.ReceivedHandler(),
		w.RetryHandler(),
		p.Handler(proberTaskName),
		re.Handler(),
		rc.Handler(reconcileTaskName),
		sw.Handler(sweeperTaskName),
	); err != nil {
		log.Error("register handlers failed", "error", err)
		os.Exit(1)
	}

	sched, err := queue.NewScheduler(queueRepo, queue.WithSchedulerLogger(log))
	if err != nil {
		log.Error("build scheduler failed", "error", err)
		os.Exit(1)
	}
	if err := sched.AddTask(proberTaskName, queue.EveryInterval(60*time.Second)); err != nil {
		log.Error("schedule prober failed", "error", err)
		os.Exit(1)
	}
	if err := sched.AddTask(reconcileTaskName, queue.EveryInterval(5*time.Minute)); err != nil {
		log.Error("schedule reconcile failed", "error", err)
		os.Exit(1)
	}
	if err := sched.AddTask(sweeperTaskName, queue.EveryInterval(60*time.Second)); err != nil {
		log.Error("schedule sweeper failed", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(wk.Run(gctx))
	g.Go(func() error { return sched.Start(gctx) })

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		log.Error("worker group stopped with error", "error", err)
		os.Exit(1)
	}
}

func buildReconciler(cfg appConfig, store *storepg.Store, enqueuer *queue.Enqueuer, log *slog.Logger) *reconcile.Reconciler {
	var appKey []byte
	if cfg.SecretsAppKey != "" {
		decoded, err := base64.StdEncoding.DecodeString(cfg.SecretsAppKey)
		if err != nil {
			log.Error("decode secrets app key failed", "error", err)
		} else {
			appKey = decoded
		}
	}

	// Passed as literal nil, not a nilable *ShopifyClient var: the client
	// parameter is an interface, and a typed-nil pointer boxed into it
	// would compare non-nil.
	if cfg.ShopifyBaseURL == "" {
		return reconcile.New(store.Integrations, store.Events, store.Reconciliation, enqueuer, appKey, reconcile.NewStripeClient(), nil, log)
	}
	return reconcile.New(store.Integrations, store.Events, store.Reconciliation, enqueuer, appKey, reconcile.NewStripeClient(), reconcile.NewShopifyClient(cfg.ShopifyBaseURL), log)
}
