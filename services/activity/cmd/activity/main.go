package main

import (
	"context"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/config"
	"github.com/example/virexbooks/internal/platform/db"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/internal/platform/idempotency"
	"github.com/example/virexbooks/internal/platform/logging"
	"github.com/example/virexbooks/internal/platform/natsconn"
	"github.com/example/virexbooks/internal/platform/run"
	"github.com/example/virexbooks/services/activity/internal/aggregate"
	activityconfig "github.com/example/virexbooks/services/activity/internal/config"
	"github.com/example/virexbooks/services/activity/internal/handlers"
	activitystore "github.com/example/virexbooks/services/activity/internal/store"
	"github.com/example/virexbooks/services/activity/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	actCfg, err := activityconfig.LoadActivity()
	if err != nil {
		log.Error("load activity config", zap.Error(err))
		run.Exit(1)
	}

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	progress := activitystore.NewPostgresProgressRepository(pool)
	content := activitystore.NewPostgresContentRepository(pool)
	agg := aggregate.Aggregator{WeekStart: actCfg.WeekStart, Loc: actCfg.Loc}

	var publisher *handlers.EventPublisher
	var ap *analytics.Publisher
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats connect failed, progress writes fall back to sync", zap.Error(err))
	} else {
		defer nc.Close()
		js, err := nc.JetStream()
		if err != nil {
			log.Warn("jetstream unavailable", zap.Error(err))
		} else {
			publisher = handlers.NewEventPublisher(js)
			ap = analytics.New(js, log)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Put("/v1/reading-progress/{book_id}", handlers.UpsertProgress(progress, publisher, ap))
		r.Get("/v1/reading-progress", handlers.ContinueReadingList(progress))
		r.Get("/v1/activity/summary", handlers.Summary(progress, content, agg))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			dedup, err := idempotency.NewStore("activity", actCfg.RedisDSN, os.Getenv("DATABASE_URL"), 24*time.Hour, actCfg.Production)
			if err != nil {
				return err
			}
			go worker.StartProgressConsumer(ctx, nc, progress, dedup, log)
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
