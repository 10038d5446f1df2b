package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/exp/slog"

	"vetbridge/internal/domain/bridge"
)

type DocumentRepository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func NewDocumentRepository(pool *pgxpool.Pool, log *slog.Logger) *DocumentRepository {
	return &DocumentRepository{
		pool: pool,
		log:  log.With("component", "document_repository"),
	}
}

// UpsertBatch пишет все документы в одной транзакции. Существующие
// поля документа сохраняются, присланные перезаписываются (jsonb ||).
func (r *DocumentRepository) UpsertBatch(ctx context.Context, docs []bridge.Document) error {
	const query = `
		INSERT INTO documents (collection, id, data, updated_at)
		VALUES ($1, $2, $3::jsonb, $4)
		ON CONFLICT (collection, id) DO UPDATE SET
			data = documents.data || EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`

	batch := &pgx.Batch{}
	for _, d := range docs {
		data, err := json.Marshal(d.Data)
		if err != nil {
			return fmt.Errorf("marshal document %s/%s: %w", d.Collection, d.ID, err)
		}
		batch.Queue(query, d.Collection, d.ID, string(data), d.UpdatedAt)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	br := tx.SendBatch(ctx, batch)
	for _, d := range docs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			r.log.Error("failed to upsert document", "collection", d.Collection, "id", d.ID, "error", err)
			return fmt.Errorf("upsert document %s/%s: %w", d.Collection, d.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, collection, id string) (*bridge.Document, error) {
	const query = `
		SELECT data, updated_at
		FROM documents
		WHERE collection = $1 AND id = $2`

	doc := bridge.Document{Collection: collection, ID: id}
	var raw []byte
	err := r.pool.QueryRow(ctx, query, collection, id).Scan(&raw, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bridge.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	if err := json.Unmarshal(raw, &doc.Data); err != nil {
		return nil, fmt.Errorf("decode document %s/%s: %w", collection, id, err)
	}
	return &doc, nil
}

func (r *DocumentRepository) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE collection = $1`, collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}
