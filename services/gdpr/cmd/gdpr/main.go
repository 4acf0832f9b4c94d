package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/config"
	"github.com/example/virexbooks/internal/platform/db"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/internal/platform/logging"
	"github.com/example/virexbooks/internal/platform/natsconn"
	"github.com/example/virexbooks/internal/platform/run"
	gdprconfig "github.com/example/virexbooks/services/gdpr/internal/config"
	"github.com/example/virexbooks/services/gdpr/internal/deleter"
	"github.com/example/virexbooks/services/gdpr/internal/export"
	"github.com/example/virexbooks/services/gdpr/internal/handlers"
	"github.com/example/virexbooks/services/gdpr/internal/store"
	"github.com/example/virexbooks/services/gdpr/internal/worker"
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

	gdprCfg := gdprconfig.LoadGDPR()

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	dataRequests := store.NewPostgresDataRequestStore(pool)
	deletions := store.NewPostgresDeletionRequestStore(pool)
	source := export.NewPostgresSource(pool)
	builder := export.NewBuilder(source)

	var ap *analytics.Publisher
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats connect failed, analytics disabled", zap.Error(err))
	} else {
		defer nc.Close()
		js, jsErr := nc.JetStream()
		if jsErr != nil {
			log.Warn("jetstream unavailable", zap.Error(jsErr))
		} else {
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
		r.Post("/v1/gdpr/data-requests", handlers.CreateDataRequest(dataRequests, source, gdprCfg.DataRequestTTL, ap))
		r.Get("/v1/gdpr/data-requests", handlers.ListDataRequests(dataRequests))
		r.Get("/v1/gdpr/export", handlers.ExportData(builder, ap))
		r.Post("/v1/gdpr/deletion-request", handlers.RequestDeletion(deletions, source, gdprCfg.DeletionGrace))
		r.Get("/v1/gdpr/deletion-request", handlers.GetDeletionRequest(deletions))
		r.Delete("/v1/gdpr/deletion-request", handlers.CancelDeletion(deletions))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	sweeper := worker.NewSweeper(log, dataRequests, deletions, deleter.New(pool))
	sweeper.PollInterval = gdprCfg.SweepInterval

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			if err := sweeper.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("sweeper stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
