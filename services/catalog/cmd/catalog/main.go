package main

import (
	"context"
	"os"
	"strings"

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
	"github.com/example/virexbooks/internal/platform/signing"
	catalogconfig "github.com/example/virexbooks/services/catalog/internal/config"
	"github.com/example/virexbooks/services/catalog/internal/handlers"
	"github.com/example/virexbooks/services/catalog/internal/outbox"
	"github.com/example/virexbooks/services/catalog/internal/scheduler"
	"github.com/example/virexbooks/services/catalog/internal/store"
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

	catCfg := catalogconfig.LoadCatalog()

	pool, err := db.Open(context.Background())
	if err != nil {
		log.Error("db open", zap.Error(err))
		run.Exit(1)
	}
	defer pool.Close()

	books := store.NewPostgresBookStore(pool)
	chapters := store.NewPostgresChapterStore(pool)

	// Catalog mutations queue their event in the same transaction; the
	// relay below ships the rows to JetStream.
	record := func(ctx context.Context, tx store.Execer, subject string, payload any) error {
		return outbox.Record(ctx, tx, subject, payload)
	}
	books.Record = record
	chapters.Record = record

	signSecret := strings.TrimSpace(os.Getenv("ASSET_SIGNING_SECRET"))
	if signSecret == "" {
		signSecret = cfg.JWTSecret
	}
	signer := signing.New(signSecret)

	var ap *analytics.Publisher
	var relay *outbox.Publisher
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
		relay, err = outbox.NewPublisher(log, pool, nc)
		if err != nil {
			log.Warn("outbox publisher unavailable", zap.Error(err))
		}
	}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		ReadyFunc: func() error { return pool.Ping(context.Background()) },
	})

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}

	// Public reads.
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		r.Get("/v1/books/{book_id}", handlers.GetBook(books))
		r.Get("/v1/books/{book_id}/chapters", handlers.ListChapters(chapters))
		r.Get("/v1/chapters/{chapter_id}", handlers.GetChapter(chapters, ap))
	})

	// Author surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Post("/v1/books", handlers.CreateBook(books))
		r.Get("/v1/books", handlers.ListMyBooks(books))
		r.Put("/v1/books/{book_id}", handlers.UpdateBook(books))
		r.Delete("/v1/books/{book_id}", handlers.DeleteBook(books))
		r.Post("/v1/books/{book_id}/publish", handlers.SetBookStatus(books, store.BookPublished, ap))
		r.Post("/v1/books/{book_id}/unpublish", handlers.SetBookStatus(books, store.BookDraft, ap))
		r.Post("/v1/books/{book_id}/cover-upload", handlers.PresignCoverUpload(books, signer, catCfg.UploadBaseURL, catCfg.UploadTTL))
		r.Post("/v1/books/{book_id}/chapters", handlers.CreateChapter(books, chapters))
		r.Put("/v1/chapters/{chapter_id}", handlers.UpdateChapter(chapters))
		r.Delete("/v1/chapters/{chapter_id}", handlers.DeleteChapter(chapters))
		r.Post("/v1/chapters/{chapter_id}/publish", handlers.PublishChapter(chapters, ap))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	sched := scheduler.New(log, chapters, ap)
	sched.PollInterval = catCfg.ScheduleInterval

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			if err := sched.Run(ctx); err != nil {
				log.Error("scheduler stopped", zap.Error(err))
			}
		}()
		if relay != nil {
			go func() {
				if err := relay.Run(ctx); err != nil {
					log.Error("outbox relay stopped", zap.Error(err))
				}
			}()
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
