package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/slog"

	"vetbridge/internal/app/server/api"
	"vetbridge/internal/app/server/api/http/health"
	"vetbridge/internal/app/server/config"
	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
	"vetbridge/internal/infrastructure/storage/memory"
	"vetbridge/internal/infrastructure/storage/postgres"
	"vetbridge/internal/utils/logger"
)

const shutdownTimeout = 10 * time.Second

// memoryChecker health-проверка для хранилища в памяти
type memoryChecker struct{}

func (memoryChecker) Name() string                 { return "memory" }
func (memoryChecker) Ping(_ context.Context) error { return nil }

type postgresChecker struct {
	*postgres.Storage
}

func (postgresChecker) Name() string { return "postgres" }

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		docs    bridge.Repository
		queue   mailbox.Repository
		checker health.Checker
	)

	if cfg.DB.DatabaseURI == "" {
		log.Warn("DATABASE_URI is empty, using in-memory store")
		docs = memory.NewDocumentRepository()
		queue = memory.NewMailboxRepository()
		checker = memoryChecker{}
	} else {
		storage, err := postgres.New(ctx, cfg.DB.DatabaseURI, cfg.DB.Migrations)
		if err != nil {
			log.Error("failed to init storage", logger.Err(err))
			os.Exit(1)
		}
		defer storage.Close()

		docs = postgres.NewDocumentRepository(storage.Pool(), log)
		queue = postgres.NewMailboxRepository(storage.Pool(), log)
		checker = postgresChecker{storage}
	}

	ingest := bridge.NewService(docs, log, cfg.Bridge.WriteCeiling)
	mb := mailbox.NewService(queue, log, mailbox.Config{
		PageSize:       cfg.Mailbox.PageSize,
		FetchTimeout:   cfg.Mailbox.FetchTimeout,
		MaxAttempts:    cfg.Mailbox.MaxAttempts,
		ReaperInterval: cfg.Mailbox.ReaperInterval,
	})
	go mb.RunReaper(ctx)

	mux := api.New(cfg, api.Services{Bridge: ingest, Mailbox: mb, Health: checker}, log)

	srv := &http.Server{
		Addr:              cfg.Server.RunAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
	}

	go func() {
		log.Info("server started", slog.String("address", cfg.Server.RunAddress), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
	}
}
