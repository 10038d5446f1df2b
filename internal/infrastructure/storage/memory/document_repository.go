// Package memory хранилище в памяти процесса для локального запуска без
// Postgres и для тестов. Семантика совпадает с пакетом postgres.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"vetbridge/internal/domain/bridge"
)

type docKey struct {
	collection string
	id         string
}

type DocumentRepository struct {
	mu   sync.RWMutex
	docs map[docKey]bridge.Document
	// failNext ошибка для следующего UpsertBatch (для тестов)
	failNext error
}

func NewDocumentRepository() *DocumentRepository {
	return &DocumentRepository{docs: make(map[docKey]bridge.Document)}
}

func (r *DocumentRepository) UpsertBatch(_ context.Context, docs []bridge.Document) error {
	// сериализуем заранее, чтобы ошибка не оставила батч примененным наполовину
	prepared := make([]bridge.Document, len(docs))
	for i, d := range docs {
		data, err := cloneData(d.Data)
		if err != nil {
			return fmt.Errorf("marshal document %s/%s: %w", d.Collection, d.ID, err)
		}
		d.Data = data
		prepared[i] = d
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}

	for _, d := range prepared {
		k := docKey{d.Collection, d.ID}
		if old, ok := r.docs[k]; ok {
			merged := maps.Clone(old.Data)
			maps.Copy(merged, d.Data)
			d.Data = merged
		}
		r.docs[k] = d
	}
	return nil
}

func (r *DocumentRepository) Get(_ context.Context, collection, id string) (*bridge.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.docs[docKey{collection, id}]
	if !ok {
		return nil, bridge.ErrNotFound
	}
	d.Data = maps.Clone(d.Data)
	return &d, nil
}

func (r *DocumentRepository) Count(_ context.Context, collection string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for k := range r.docs {
		if k.collection == collection {
			n++
		}
	}
	return n, nil
}

// FailNext заставляет следующий UpsertBatch вернуть err, ничего не записав
func (r *DocumentRepository) FailNext(err error) {
	r.mu.Lock()
	r.failNext = err
	r.mu.Unlock()
}

// cloneData приводит данные к виду, в котором они лежали бы в jsonb
func cloneData(data map[string]any) (map[string]any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
