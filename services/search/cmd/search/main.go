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
	searchconfig "github.com/example/virexbooks/services/search/internal/config"
	"github.com/example/virexbooks/services/search/internal/handlers"
	"github.com/example/virexbooks/services/search/internal/indexer"
	"github.com/example/virexbooks/services/search/internal/meili"
	"github.com/example/virexbooks/services/search/internal/store"
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

	searchCfg := searchconfig.LoadSearch()

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Error("nats connect", zap.Error(err))
		run.Exit(1)
	}
	defer nc.Close()

	var ap *analytics.Publisher
	if js, jsErr := nc.JetStream(); jsErr != nil {
		log.Warn("jetstream unavailable", zap.Error(jsErr))
	} else {
		ap = analytics.New(js, log)
	}

	meiliClient := meili.New(searchCfg.MeiliURL, searchCfg.MeiliAPIKey)
	books := store.NewPostgresBookSource(pool)

	ix := &indexer.Indexer{
		Books:        books,
		Meili:        meiliClient,
		Log:          log,
		NATS:         nc,
		ReindexEvery: searchCfg.ReindexInterval,
	}
	if searchCfg.ReindexOnce {
		if err := ix.ReindexAll(context.Background()); err != nil {
			log.Error("reindex failed", zap.Error(err))
			run.Exit(1)
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/search", handlers.SearchBooks(meiliClient, ap))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			if err := ix.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("indexer stopped", zap.Error(err))
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
