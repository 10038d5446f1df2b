package connector

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/exp/slog"

	"vetbridge/internal/app/connector/config"
	"vetbridge/internal/app/connector/snapshot"
	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/infrastructure/dbf"
	"vetbridge/internal/telemetry"
)

const otelScope = "vetbridge/connector"

var (
	ErrSyncInProgress    = errors.New("синхронизация уже выполняется")
	ErrSourceNotDetected = errors.New("не удалось найти данные AVImark")
)

// SyncError ошибка одного шага цикла
type SyncError struct {
	Entity    string    `json:"entity,omitempty"`
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// EntityReport счетчики одной таблицы за цикл
type EntityReport struct {
	Read           int  `json:"read"`
	Deleted        int  `json:"deleted"`
	Invalid        int  `json:"invalid"`
	Unchanged      int  `json:"unchanged"`
	Sent           int  `json:"sent"`
	Applied        int  `json:"applied"`
	Deferred       int  `json:"deferred"`
	RejectedChunks int  `json:"rejectedChunks"`
	Missing        bool `json:"missing,omitempty"`
}

// SyncReport результат цикла синхронизации
type SyncReport struct {
	Success   bool                          `json:"success"`
	Full      bool                          `json:"full"`
	Source    string                        `json:"source"`
	Entities  map[bridge.Kind]*EntityReport `json:"entities"`
	Errors    []SyncError                   `json:"errors"`
	Duration  time.Duration                 `json:"duration"`
	StartTime time.Time                     `json:"startTime"`
	EndTime   time.Time                     `json:"endTime"`
}

func (r *SyncReport) addError(entity bridge.Kind, op string, err error) {
	r.Errors = append(r.Errors, SyncError{
		Entity:    string(entity),
		Operation: op,
		Error:     err.Error(),
		Timestamp: time.Now(),
	})
}

// Totals суммарные счетчики по всем таблицам
func (r *SyncReport) Totals() EntityReport {
	var t EntityReport
	for _, e := range r.Entities {
		t.Read += e.Read
		t.Deleted += e.Deleted
		t.Invalid += e.Invalid
		t.Unchanged += e.Unchanged
		t.Sent += e.Sent
		t.Applied += e.Applied
		t.Deferred += e.Deferred
		t.RejectedChunks += e.RejectedChunks
	}
	return t
}

// SyncService выполняет исходящую синхронизацию: снимок каталога AVImark,
// чтение таблиц, отбор измененных записей и отправку батчами в мост.
type SyncService struct {
	cfg      *config.Config
	facility snapshot.Facility
	bridge   Bridge
	state    *SQLiteStorage
	log      *slog.Logger
	now      func() time.Time

	tracer     trace.Tracer
	cntSent    metric.Int64Counter
	cntApplied metric.Int64Counter
	cntDefer   metric.Int64Counter
	cntErrors  metric.Int64Counter

	mu        sync.Mutex
	isSyncing bool
}

func NewSyncService(cfg *config.Config, facility snapshot.Facility, b Bridge, state *SQLiteStorage, log *slog.Logger) *SyncService {
	return &SyncService{
		cfg:      cfg,
		facility: facility,
		bridge:   b,
		state:    state,
		log:      log.With(slog.String("component", "sync")),
		now:      time.Now,

		tracer:     otel.Tracer(otelScope),
		cntSent:    telemetry.Counter(otelScope, "vetbridge.sync.sent", "Records sent to the bridge"),
		cntApplied: telemetry.Counter(otelScope, "vetbridge.sync.applied", "Records applied by the bridge"),
		cntDefer:   telemetry.Counter(otelScope, "vetbridge.sync.deferred", "Records deferred to the next cycle"),
		cntErrors:  telemetry.Counter(otelScope, "vetbridge.sync.errors", "Sync cycle errors"),
	}
}

// SourceDir каталог AVImark из конфигурации или найденный автоматически
func (s *SyncService) SourceDir() (string, error) {
	if s.cfg.SourceDir != "" {
		return s.cfg.SourceDir, nil
	}
	if dir, ok := snapshot.Detect(s.cfg.SourceCandidates); ok {
		return dir, nil
	}
	return "", ErrSourceNotDetected
}

// Snapshot снимает копию каталога AVImark в ShadowDir
func (s *SyncService) Snapshot(ctx context.Context) (string, error) {
	src, err := s.SourceDir()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SnapshotTimeout)
	defer cancel()

	start := s.now()
	if err := s.facility.Snapshot(ctx, src, s.cfg.ShadowDir); err != nil {
		return src, err
	}
	s.log.Info("Снимок данных получен",
		slog.String("src", src),
		slog.String("dst", s.cfg.ShadowDir),
		slog.Duration("took", s.now().Sub(start)),
	)
	return src, nil
}

// Sync выполняет цикл, отправляя только изменившиеся записи
func (s *SyncService) Sync(ctx context.Context) (*SyncReport, error) {
	return s.run(ctx, false)
}

// SyncFull выполняет цикл, отправляя все записи независимо от отпечатков
func (s *SyncService) SyncFull(ctx context.Context) (*SyncReport, error) {
	return s.run(ctx, true)
}

func (s *SyncService) run(ctx context.Context, full bool) (*SyncReport, error) {
	s.mu.Lock()
	if s.isSyncing {
		s.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	s.isSyncing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.isSyncing = false
		s.mu.Unlock()
	}()

	ctx, span := s.tracer.Start(ctx, "sync.cycle", trace.WithAttributes(attribute.Bool("full", full)))
	defer span.End()

	report := &SyncReport{
		Full:      full,
		StartTime: s.now(),
		Entities:  make(map[bridge.Kind]*EntityReport, len(Tables)),
		Errors:    []SyncError{},
	}

	s.log.Info("Начало синхронизации", slog.Bool("full", full))

	err := s.cycle(ctx, report, full)

	report.EndTime = s.now()
	report.Duration = report.EndTime.Sub(report.StartTime)
	report.Success = err == nil && len(report.Errors) == 0

	if len(report.Errors) > 0 {
		s.cntErrors.Add(ctx, int64(len(report.Errors)))
	}
	if saveErr := s.state.SaveRun(context.WithoutCancel(ctx), report); saveErr != nil {
		s.log.Error("Не удалось сохранить отчет синхронизации", slog.String("error", saveErr.Error()))
	}

	totals := report.Totals()
	span.SetAttributes(
		attribute.Int("sent", totals.Sent),
		attribute.Int("applied", totals.Applied),
		attribute.Int("deferred", totals.Deferred),
	)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Error("Цикл синхронизации прерван", slog.String("error", err.Error()), slog.Duration("duration", report.Duration))
		return report, err
	}

	if report.Success {
		s.log.Info("Синхронизация успешно завершена",
			slog.Duration("duration", report.Duration),
			slog.Int("sent", totals.Sent),
			slog.Int("applied", totals.Applied),
			slog.Int("deferred", totals.Deferred),
			slog.Int("unchanged", totals.Unchanged),
		)
	} else {
		s.log.Warn("Синхронизация завершена с ошибками",
			slog.Duration("duration", report.Duration),
			slog.Int("errors", len(report.Errors)),
		)
	}
	return report, nil
}

// cycle возвращает ошибку только когда цикл прерван целиком
func (s *SyncService) cycle(ctx context.Context, report *SyncReport, full bool) error {
	src, err := s.Snapshot(ctx)
	report.Source = src
	if err != nil {
		report.addError("", "snapshot", err)
		return fmt.Errorf("snapshot: %w", err)
	}

	for _, t := range Tables {
		er := &EntityReport{}
		report.Entities[t.Kind] = er

		if err := s.syncTable(ctx, t, er, report, full); err != nil {
			return err
		}
	}
	return nil
}

type pending struct {
	entity      bridge.Entity
	fingerprint string
}

func (s *SyncService) syncTable(ctx context.Context, t Table, er *EntityReport, report *SyncReport, full bool) error {
	log := s.log.With(slog.String("entity", string(t.Kind)))

	path, ok := findTable(s.cfg.ShadowDir, t.File)
	if !ok {
		er.Missing = true
		log.Warn("Таблица не найдена в снимке", slog.String("file", t.File))
		return nil
	}

	changed, err := s.collect(ctx, t, path, er, full)
	if err != nil {
		report.addError(t.Kind, "read", err)
		log.Error("Ошибка чтения таблицы", slog.String("error", err.Error()))
		return nil
	}

	if len(changed) > s.cfg.MaxPerCycle {
		er.Deferred += len(changed) - s.cfg.MaxPerCycle
		changed = changed[:s.cfg.MaxPerCycle]
	}

	for start := 0; start < len(changed); start += s.cfg.BatchSize {
		chunk := changed[start:min(start+s.cfg.BatchSize, len(changed))]

		applied, err := s.pushChunk(ctx, t.Kind, chunk, er)
		switch {
		case errors.Is(err, ErrUnauthorized):
			report.addError(t.Kind, "push", err)
			er.Deferred += len(changed) - start
			return err
		case errors.Is(err, ErrPayloadRejected):
			report.addError(t.Kind, "push", err)
			er.RejectedChunks++
			log.Warn("Мост отклонил батч", slog.Int("size", len(chunk)), slog.String("error", err.Error()))
			continue
		case err != nil:
			report.addError(t.Kind, "push", err)
			er.Deferred += len(changed) - start
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error("Ошибка отправки, остаток отложен", slog.Int("deferred", len(changed)-start), slog.String("error", err.Error()))
			return nil
		}

		if applied < len(chunk) {
			// ceiling достигнут: хвост и остальные чанки уходят в следующий цикл
			er.Deferred += len(changed) - start - applied
			s.cntDefer.Add(ctx, int64(len(changed)-start-applied), metric.WithAttributes(attribute.String("entity", string(t.Kind))))
			log.Info("Мост применил часть батча, остаток отложен",
				slog.Int("applied", applied),
				slog.Int("deferred", len(changed)-start-applied),
			)
			return nil
		}
	}
	return nil
}

// collect читает таблицу и отбирает записи, отличающиеся от уже примененных
func (s *SyncService) collect(ctx context.Context, t Table, path string, er *EntityReport, full bool) ([]pending, error) {
	table, err := dbf.Open(path)
	if err != nil {
		return nil, err
	}
	defer table.Close()

	known := map[string]string{}
	if !full {
		if known, err = s.state.Fingerprints(ctx, t.Kind); err != nil {
			return nil, err
		}
	}

	order := make([]string, 0, table.Header().RecordCount)
	byKey := make(map[string]pending, table.Header().RecordCount)

	for rec, err := range table.Records() {
		if err != nil {
			return nil, err
		}
		er.Read++
		if rec.Deleted {
			er.Deleted++
		}

		entity, err := t.Map(rec)
		if err != nil {
			er.Invalid++
			s.log.Debug("Пропуск некорректной записи",
				slog.String("entity", string(t.Kind)),
				slog.Int("index", rec.Index),
				slog.String("error", err.Error()),
			)
			continue
		}

		key := entity.Key()
		prev, seen := byKey[key]
		if seen && !prev.entity.IsDeleted() && entity.IsDeleted() {
			// живая запись важнее удаленной копии с тем же идентификатором
			continue
		}

		fp, err := fingerprint(entity)
		if err != nil {
			return nil, err
		}
		if !seen {
			order = append(order, key)
		}
		byKey[key] = pending{entity: entity, fingerprint: fp}
	}

	changed := make([]pending, 0, len(order))
	for _, key := range order {
		p := byKey[key]
		if known[key] == p.fingerprint {
			er.Unchanged++
			continue
		}
		changed = append(changed, p)
	}
	return changed, nil
}

func (s *SyncService) pushChunk(ctx context.Context, kind bridge.Kind, chunk []pending, er *EntityReport) (int, error) {
	ctx, span := s.tracer.Start(ctx, "sync.push", trace.WithAttributes(
		attribute.String("entity", string(kind)),
		attribute.Int("size", len(chunk)),
	))
	defer span.End()

	entities := make([]bridge.Entity, len(chunk))
	for i, p := range chunk {
		entities[i] = p.entity
	}

	er.Sent += len(chunk)
	s.cntSent.Add(ctx, int64(len(chunk)), metric.WithAttributes(attribute.String("entity", string(kind))))

	res, err := s.bridge.Push(ctx, kind, entities)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	applied := min(max(res.Count, 0), len(chunk))
	er.Applied += applied
	s.cntApplied.Add(ctx, int64(applied), metric.WithAttributes(attribute.String("entity", string(kind))))

	fps := make(map[string]string, applied)
	for _, p := range chunk[:applied] {
		fps[p.entity.Key()] = p.fingerprint
	}
	if err := s.state.SaveFingerprints(ctx, kind, fps, s.now()); err != nil {
		// записи уже в мосту, при следующем цикле они просто уйдут повторно
		s.log.Error("Не удалось сохранить отпечатки", slog.String("entity", string(kind)), slog.String("error", err.Error()))
	}
	return applied, nil
}

// fingerprint BLAKE2b-256 от JSON-представления сущности
func fingerprint(e bridge.Entity) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации записи %s: %w", e.Key(), err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
