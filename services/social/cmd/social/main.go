package main

import (
	"context"
	"os"
	"strings"
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
	"github.com/example/virexbooks/services/social/internal/handlers"
	"github.com/example/virexbooks/services/social/internal/store"
	"github.com/example/virexbooks/services/social/internal/worker"
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

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	comments := store.NewPostgresCommentStore(pool)
	follows := store.NewPostgresFollowStore(pool)
	likes := store.NewPostgresLikeStore(pool)
	feed := store.NewPostgresFeedSource(pool)

	var ap *analytics.Publisher
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats connect failed, events disabled", zap.Error(err))
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

	// Public reads.
	r.Get("/v1/comments/{book_id}", handlers.GetThread(comments))
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/likes/{book_id}", handlers.GetLikes(likes))
		r.Get("/v1/follows/{author_id}/count", handlers.GetFollowerCount(follows))
	})

	// Authenticated writes.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/comments/{book_id}", handlers.CreateComment(comments))
		r.Post("/v1/comments/{comment_id}/vote", handlers.VoteComment(comments))
		r.Put("/v1/comments/{comment_id}", handlers.UpdateComment(comments))
		r.Delete("/v1/comments/{comment_id}", handlers.DeleteComment(comments))

		r.Put("/v1/likes/{book_id}", handlers.LikeBook(likes, ap))
		r.Delete("/v1/likes/{book_id}", handlers.UnlikeBook(likes))

		r.Put("/v1/follows/{author_id}", handlers.FollowAuthor(follows, ap))
		r.Delete("/v1/follows/{author_id}", handlers.UnfollowAuthor(follows))
		r.Get("/v1/follows", handlers.ListFollowing(follows))

		r.Get("/v1/feed", handlers.GetFeed(follows, feed))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	isProd := strings.EqualFold(strings.TrimSpace(os.Getenv("APP_ENV")), "production")

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		if nc != nil {
			dedup, err := idempotency.NewStore("social",
				strings.TrimSpace(os.Getenv("REDIS_DSN")), os.Getenv("DATABASE_URL"), 24*time.Hour, isProd)
			if err != nil {
				return err
			}
			go worker.StartCommentsConsumer(ctx, nc, comments, dedup, log)
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
