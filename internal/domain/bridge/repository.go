package bridge

import (
	"context"
)

// Repository облачное хранилище документов.
// UpsertBatch применяет все документы атомарно: либо все, либо ни одного.
// Поля существующего документа сливаются с новыми (поверх), остальные сохраняются.
type Repository interface {
	UpsertBatch(ctx context.Context, docs []Document) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	Count(ctx context.Context, collection string) (int, error)
}
