// Command server runs the ingestion and dashboard/management HTTP API:
// POST /ingest/{integration_id} and the read-only /api surface
// (spec.md §4.F, SPEC_FULL.md §7). Delivery, probing, replay,
// reconciliation, and sweeping all run out of cmd/worker instead.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hookwise/core/api"
	"github.com/hookwise/core/ingest"
	"github.com/hookwise/core/pkg/config"
	"github.com/hookwise/core/pkg/httpserver"
	"github.com/hookwise/core/pkg/logger"
	"github.com/hookwise/core/pkg/pg"
	"github.com/hookwise/core/pkg/queue"
	storepg "github.com/hookwise/core/store/pg"
)

type appConfig struct {
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`
}

func main() {
	log := logger.New(logger.WithProduction("hookwise-server"))

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.Error("connect postgres failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := storepg.New(pool)
	queueRepo := queue.NewPgStore(pool)
	enqueuer, err := queue.NewEnqueuer(queueRepo)
	if err != nil {
		log.Error("build enqueuer failed", "error", err)
		os.Exit(1)
	}

	ingestSvc := ingest.New(store.Integrations, store.Events, enqueuer, log)
	apiSvc := api.New(store.Integrations, store.Endpoints, store.Events, store.ReplayQueue, log)

	root := chi.NewRouter()
	root.Mount("/ingest", ingestSvc.Handle())
	root.Mount("/api", apiSvc.Handle())
	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(
		httpserver.WithAddr(cfg.Addr),
		httpserver.WithReadTimeout(10*time.Second),
		httpserver.WithWriteTimeout(10*time.Second),
		httpserver.WithShutdownTimeout(15*time.Second),
		httpserver.WithLogger(log),
		httpserver.WithStartHook(func(l *slog.Logger) {
			l.Info("server listening", "addr", cfg.Addr)
		}),
	)

	if err := srv.Run(ctx, root); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}
