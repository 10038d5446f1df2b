package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"vetbridge/internal/domain/mailbox"
)

const commandColumns = `id::text, type, payload, status, attempts, last_error, created_at, fetched_at, completed_at`

type MailboxRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewMailboxRepository(pool *pgxpool.Pool, log *slog.Logger) *MailboxRepository {
	return &MailboxRepository{
		pool: pool,
		log:  log.With("component", "mailbox_repository"),
	}
}

func (r *MailboxRepository) Enqueue(ctx context.Context, cmd *mailbox.Command) error {
	const query = `
		INSERT INTO bridge_queue (id, type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3::jsonb, $4, 0, $5)`

	_, err := r.pool.Exec(ctx, query, cmd.ID, cmd.Type, string(cmd.Payload), string(cmd.Status), cmd.CreatedAt)
	if err != nil {
		r.log.Error("failed to enqueue command", "id", cmd.ID, "error", err)
		return fmt.Errorf("enqueue command: %w", err)
	}
	return nil
}

func (r *MailboxRepository) Get(ctx context.Context, id string) (*mailbox.Command, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, mailbox.ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `SELECT `+commandColumns+` FROM bridge_queue WHERE id = $1`, id)
	cmd, err := scanCommand(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, mailbox.ErrNotFound
		}
		return nil, fmt.Errorf("get command: %w", err)
	}
	return cmd, nil
}

// ClaimPending забирает страницу одним оператором: строки, заблокированные
// параллельным вызовом, пропускаются (SKIP LOCKED).
func (r *MailboxRepository) ClaimPending(ctx context.Context, limit int, now time.Time) ([]mailbox.Command, error) {
	const query = `
		UPDATE bridge_queue
		SET status = 'fetched', fetched_at = $2, attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM bridge_queue
			WHERE status = 'pending'
			ORDER BY created_at, id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + commandColumns

	rows, err := r.pool.Query(ctx, query, limit, now)
	if err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}
	defer rows.Close()

	var cmds []mailbox.Command
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		cmds = append(cmds, *cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim pending: %w", err)
	}

	sort.Slice(cmds, func(i, j int) bool {
		return cmds[i].CreatedAt.Before(cmds[j].CreatedAt)
	})
	return cmds, nil
}

func (r *MailboxRepository) Complete(ctx context.Context, id string, status mailbox.Status, errMsg string, now time.Time) (*mailbox.Command, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, mailbox.ErrNotFound
	}

	const query = `
		UPDATE bridge_queue
		SET status = $2, last_error = $3, completed_at = $4
		WHERE id = $1 AND status = 'fetched'
		RETURNING ` + commandColumns

	cmd, err := scanCommand(r.pool.QueryRow(ctx, query, id, string(status), errMsg, now))
	if err == nil {
		return cmd, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("complete command: %w", err)
	}

	// строка не обновилась: либо ее нет, либо статус не fetched
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, mailbox.ErrInvalidTransition
}

func (r *MailboxRepository) RequeueStale(ctx context.Context, fetchedBefore time.Time, maxAttempts int) (int, int, error) {
	const query = `
		WITH stale AS (
			SELECT id, attempts FROM bridge_queue
			WHERE status = 'fetched' AND fetched_at < $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE bridge_queue q
		SET status = CASE WHEN stale.attempts >= $2 THEN 'failed' ELSE 'pending' END,
			fetched_at = CASE WHEN stale.attempts >= $2 THEN q.fetched_at ELSE NULL END,
			completed_at = CASE WHEN stale.attempts >= $2 THEN NOW() ELSE NULL END,
			last_error = CASE WHEN stale.attempts >= $2
				THEN 'not acknowledged after ' || stale.attempts || ' attempts'
				ELSE q.last_error END
		FROM stale
		WHERE q.id = stale.id
		RETURNING q.status`

	rows, err := r.pool.Query(ctx, query, fetchedBefore, maxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("requeue stale: %w", err)
	}
	defer rows.Close()

	var requeued, failed int
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return 0, 0, fmt.Errorf("scan status: %w", err)
		}
		if mailbox.Status(status) == mailbox.StatusFailed {
			failed++
		} else {
			requeued++
		}
	}
	return requeued, failed, rows.Err()
}

func scanCommand(row pgx.Row) (*mailbox.Command, error) {
	var (
		cmd     mailbox.Command
		status  string
		payload []byte
	)
	err := row.Scan(&cmd.ID, &cmd.Type, &payload, &status, &cmd.Attempts, &cmd.LastError,
		&cmd.CreatedAt, &cmd.FetchedAt, &cmd.CompletedAt)
	if err != nil {
		return nil, err
	}
	cmd.Status = mailbox.Status(status)
	cmd.Payload = payload
	return &cmd, nil
}
