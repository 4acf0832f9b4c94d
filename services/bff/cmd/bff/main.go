package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/config"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/internal/platform/logging"
	"github.com/example/virexbooks/internal/platform/natsconn"
	"github.com/example/virexbooks/internal/platform/run"
	bffconfig "github.com/example/virexbooks/services/bff/internal/config"
	"github.com/example/virexbooks/services/bff/internal/gateway"
	bffhttp "github.com/example/virexbooks/services/bff/internal/http"
)

// cacheable path prefixes: public catalog and search reads only.
var cachedPrefixes = map[string]bool{
	"/v1/books":    true,
	"/v1/search":   true,
	"/v1/comments": true,
}

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

	bffCfg, err := bffconfig.LoadBFF()
	if err != nil {
		log.Error("load bff config", zap.Error(err))
		run.Exit(1)
	}

	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats connect failed, cache invalidation disabled", zap.Error(err))
		nc = nil
	} else {
		defer nc.Close()
	}
	cache := gateway.NewTTLCache(bffCfg.CacheTTLSec, nc, "bff.cache.invalidate")

	r := chi.NewRouter()
	httpserver.SetupRouter(r)

	limiter := bffhttp.NewRateLimiter(bffCfg.RateLimitRPS, bffCfg.RateLimitBurst)
	r.Use(limiter.Middleware)

	for _, up := range bffCfg.Upstreams {
		proxy := gateway.NewProxy(up.Target, up.Name, log)
		for _, prefix := range up.Prefixes {
			route := prefix + "/*"
			if cachedPrefixes[prefix] {
				r.With(cache.Middleware).Handle(route, proxy)
				r.With(cache.Middleware).Handle(prefix, proxy)
				continue
			}
			r.Handle(route, proxy)
			r.Handle(prefix, proxy)
		}
	}

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
