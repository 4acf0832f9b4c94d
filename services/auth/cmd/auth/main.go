package main

import (
	"context"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/virexbooks/internal/platform/analytics"
	"github.com/example/virexbooks/internal/platform/auth"
	"github.com/example/virexbooks/internal/platform/config"
	"github.com/example/virexbooks/internal/platform/httpserver"
	"github.com/example/virexbooks/internal/platform/logging"
	"github.com/example/virexbooks/internal/platform/natsconn"
	"github.com/example/virexbooks/internal/platform/run"
	"github.com/example/virexbooks/services/auth/internal/app"
	"github.com/example/virexbooks/services/auth/internal/bootstrap"
	authconfig "github.com/example/virexbooks/services/auth/internal/config"
	"github.com/example/virexbooks/services/auth/internal/handlers"
	"github.com/example/virexbooks/services/auth/internal/store"
	"github.com/example/virexbooks/services/auth/internal/tokens"
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

	authCfg, err := authconfig.LoadAuth()
	if err != nil {
		log.Error("load auth config", zap.Error(err))
		run.Exit(1)
	}

	a, err := app.New(context.Background(), log)
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer a.Close()

	if err := bootstrap.PromoteAdmin(context.Background(), a.DB, authCfg.BootstrapAdminUsername); err != nil {
		log.Warn("bootstrap admin promotion failed", zap.Error(err))
	}

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

	st := store.Store{DB: a.DB}
	tok := tokens.Service{
		Secret:          authCfg.JWTSecret,
		AccessTokenTTL:  authCfg.AccessTokenTTL,
		RefreshTokenTTL: authCfg.RefreshTokenTTL,
	}
	svc := handlers.New(st, st, tok, authCfg, ap, log)

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return a.DB.Ping(context.Background()) },
	})

	verifier := auth.JWTVerifier{Secret: authCfg.JWTSecret}

	r.Post("/v1/auth/register", svc.Register)
	r.Post("/v1/auth/login", svc.Login)
	r.Post("/v1/auth/refresh", svc.Refresh)
	r.Post("/v1/auth/logout", svc.Logout)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/me", svc.Me)
		r.Put("/v1/me", svc.UpdateProfile)
		r.Put("/v1/me/password", svc.ChangePassword)
	})

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
