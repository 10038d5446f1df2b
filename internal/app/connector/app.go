// Package connector агент на стороне клиники: снимает копию данных
// AVImark, отправляет изменения в облачный мост и исполняет команды
// из его почтового ящика.
package connector

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/slog"

	"vetbridge/internal/app/connector/config"
	"vetbridge/internal/app/connector/snapshot"
	"vetbridge/internal/telemetry"
)

type App struct {
	config  *config.Config
	log     *slog.Logger
	storage *SQLiteStorage
	client  Bridge
	sync    *SyncService
	poller  *Poller

	shutdownTelemetry telemetry.ShutdownFunc
}

func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		OTLPEndpoint: cfg.OTLPEndpoint,
		Insecure:     cfg.OTLPInsecure,
	})
	if err != nil {
		// телеметрия необязательна
		log.Warn("Телеметрия отключена", slog.String("error", err.Error()))
	}

	storage, err := NewSQLiteStorage(cfg.StateDBPath)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("ошибка инициализации локального хранилища: %w", err)
	}

	client := NewHTTPClient(cfg, log)
	facility := snapshot.New(cfg.SnapshotHelper, cfg.SnapshotHelperArgs, cfg.CopyRetries, cfg.CopyRetryDelay, log)

	return &App{
		config:            cfg,
		log:               log,
		storage:           storage,
		client:            client,
		sync:              NewSyncService(cfg, facility, client, storage, log),
		poller:            NewPoller(client, NewImportQueueExecutor(cfg.ImportDir, log), storage, log),
		shutdownTelemetry: shutdown,
	}, nil
}

func (a *App) Sync() *SyncService { return a.sync }

func (a *App) Poller() *Poller { return a.poller }

func (a *App) Storage() *SQLiteStorage { return a.storage }

func (a *App) Bridge() Bridge { return a.client }

// Run работает как демон до отмены контекста: синхронизация и опрос
// почтового ящика по расписанию.
func (a *App) Run(ctx context.Context) error {
	sched := NewScheduler(a.log)

	if err := sched.Add("sync", a.config.SyncSchedule, func(ctx context.Context) error {
		_, err := a.sync.Sync(ctx)
		return err
	}); err != nil {
		return err
	}
	if err := sched.Add("poll", a.config.PollSchedule, func(ctx context.Context) error {
		_, err := a.poller.Poll(ctx)
		return err
	}); err != nil {
		return err
	}

	a.log.Info("Коннектор запущен",
		slog.String("bridge", a.config.BridgeURL),
		slog.String("shadow_dir", a.config.ShadowDir),
	)

	stop := sched.Start(ctx)
	<-ctx.Done()
	stop()

	a.log.Info("Коннектор остановлен")
	return nil
}

func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.storage.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.shutdownTelemetry(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
