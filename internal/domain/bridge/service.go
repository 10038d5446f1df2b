package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/exp/slog"
)

type Servicer interface {
	Ingest(ctx context.Context, kind Kind, body []byte) (*BatchResult, error)
}

// Service прием батчей от коннектора
type Service struct {
	repo    Repository
	log     *slog.Logger
	ceiling int
	now     func() time.Time
}

// NewService создает сервис приема. ceiling вне 1..StoreAtomicWriteLimit
// заменяется на DefaultWriteCeiling.
func NewService(repo Repository, log *slog.Logger, ceiling int) *Service {
	if ceiling <= 0 || ceiling > StoreAtomicWriteLimit {
		ceiling = DefaultWriteCeiling
	}
	return &Service{
		repo:    repo,
		log:     log.With(slog.String("component", "bridge_service")),
		ceiling: ceiling,
		now:     time.Now,
	}
}

// Ingest проверяет тело запроса целиком и записывает не более ceiling
// документов одним атомарным батчем. Записи сверх лимита не пишутся,
// их число возвращается в Remaining.
func (s *Service) Ingest(ctx context.Context, kind Kind, body []byte) (*BatchResult, error) {
	spec, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntity, kind)
	}

	items, err := splitBody(body, spec.field)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	docs := make([]Document, 0, min(len(items), s.ceiling))
	index := make(map[string]int, cap(docs))

	// проверяем все записи до записи в хранилище
	for i, raw := range items {
		entity, err := spec.decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidPayload, spec.field, i, err)
		}
		if err := entity.Validate(); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", spec.field, i, err)
		}
		if i >= s.ceiling {
			continue
		}

		data, err := decodeObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidPayload, spec.field, i, err)
		}
		for k, v := range entity.Fields(now) {
			data[k] = v
		}
		data["lastSyncedAt"] = now.Format(time.RFC3339Nano)
		data["source"] = Source
		// флаг пишется всегда: слияние с хранимым документом иначе сохранит старый deleted=true
		data["deleted"] = entity.IsDeleted()

		// повтор ключа в одном батче: последняя версия поверх предыдущей
		if j, ok := index[entity.Key()]; ok {
			for k, v := range data {
				docs[j].Data[k] = v
			}
			continue
		}
		index[entity.Key()] = len(docs)
		docs = append(docs, Document{
			Collection: spec.collection,
			ID:         entity.Key(),
			Data:       data,
			UpdatedAt:  now,
		})
	}

	applied := min(len(items), s.ceiling)
	result := &BatchResult{Count: applied, Remaining: len(items) - applied}

	if len(docs) == 0 {
		return result, nil
	}

	if err := s.repo.UpsertBatch(ctx, docs); err != nil {
		s.log.Error("batch write failed",
			slog.String("kind", kind.String()),
			slog.Int("documents", len(docs)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("write %s batch: %w", kind, err)
	}

	s.log.Info("batch ingested",
		slog.String("kind", kind.String()),
		slog.Int("count", result.Count),
		slog.Int("remaining", result.Remaining),
	)
	return result, nil
}

func splitBody(body []byte, field string) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidPayload)
	}

	raw, ok := envelope[field]
	if !ok || !isArray(raw) {
		return nil, fmt.Errorf("%w: %s must be an array", ErrInvalidPayload, field)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s must be an array", ErrInvalidPayload, field)
	}
	return items, nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("record must be an object")
	}
	return data, nil
}
