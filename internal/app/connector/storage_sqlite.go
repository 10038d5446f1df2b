package connector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
)

// ExecutedCommand отметка об исполненной команде почтового ящика
type ExecutedCommand struct {
	ID         string
	Type       string
	Status     mailbox.Status
	Error      string
	ExecutedAt time.Time
}

// SQLiteStorage локальное состояние коннектора: отпечатки отправленных
// записей, исполненные команды и история циклов синхронизации.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("ошибка создания директории состояния: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы данных: %w", err)
	}
	db.SetMaxOpenConns(1)

	storage := &SQLiteStorage{db: db}

	if err := storage.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка инициализации таблиц: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS record_state (
			kind TEXT NOT NULL,
			external_id TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			synced_at DATETIME NOT NULL,
			PRIMARY KEY (kind, external_id)
		);

		CREATE TABLE IF NOT EXISTS executed_commands (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			executed_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			success BOOLEAN NOT NULL,
			report TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at);
	`)

	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Fingerprints отпечатки всех ранее примененных записей сущности
func (s *SQLiteStorage) Fingerprints(ctx context.Context, kind bridge.Kind) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, fingerprint FROM record_state WHERE kind = ?`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения отпечатков: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, fp string
		if err := rows.Scan(&id, &fp); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отпечатка: %w", err)
		}
		out[id] = fp
	}
	return out, rows.Err()
}

// SaveFingerprints фиксирует отпечатки примененных записей одной транзакцией
func (s *SQLiteStorage) SaveFingerprints(ctx context.Context, kind bridge.Kind, fps map[string]string, at time.Time) (err error) {
	if len(fps) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO record_state (kind, external_id, fingerprint, synced_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, external_id) DO UPDATE
		SET fingerprint = excluded.fingerprint, synced_at = excluded.synced_at
	`)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for id, fp := range fps {
		if _, err = stmt.ExecContext(ctx, string(kind), id, fp, at.UTC()); err != nil {
			return fmt.Errorf("ошибка сохранения отпечатка %s: %w", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// ResetFingerprints забывает отпечатки сущности (или всех сущностей при пустом kind)
func (s *SQLiteStorage) ResetFingerprints(ctx context.Context, kind bridge.Kind) error {
	var err error
	if kind == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM record_state`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM record_state WHERE kind = ?`, string(kind))
	}
	if err != nil {
		return fmt.Errorf("ошибка сброса отпечатков: %w", err)
	}
	return nil
}

// ExecutedCommand возвращает отметку об исполнении команды, если она есть
func (s *SQLiteStorage) ExecutedCommand(ctx context.Context, id string) (*ExecutedCommand, bool, error) {
	var c ExecutedCommand
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, type, status, error, executed_at
		FROM executed_commands
		WHERE id = ?
	`, id).Scan(&c.ID, &c.Type, &status, &c.Error, &c.ExecutedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения команды %s: %w", id, err)
	}
	c.Status = mailbox.Status(status)
	return &c, true, nil
}

// RecordCommand сохраняет результат исполнения команды
func (s *SQLiteStorage) RecordCommand(ctx context.Context, c ExecutedCommand) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executed_commands (id, type, status, error, executed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET status = excluded.status, error = excluded.error, executed_at = excluded.executed_at
	`, c.ID, c.Type, string(c.Status), c.Error, c.ExecutedAt.UTC())
	if err != nil {
		return fmt.Errorf("ошибка сохранения команды %s: %w", c.ID, err)
	}
	return nil
}

// SaveRun сохраняет отчет о цикле синхронизации
func (s *SQLiteStorage) SaveRun(ctx context.Context, r *SyncReport) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("ошибка сериализации отчета: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (started_at, finished_at, success, report)
		VALUES (?, ?, ?, ?)
	`, r.StartTime.UTC(), r.EndTime.UTC(), r.Success, string(data))
	if err != nil {
		return fmt.Errorf("ошибка сохранения отчета: %w", err)
	}
	return nil
}

// RecentRuns последние отчеты, от новых к старым
func (s *SQLiteStorage) RecentRuns(ctx context.Context, limit int) ([]*SyncReport, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT report FROM sync_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения истории: %w", err)
	}
	defer rows.Close()

	var out []*SyncReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("ошибка сканирования отчета: %w", err)
		}
		var r SyncReport
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("ошибка парсинга отчета: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
