package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"vetbridge/internal/domain/bridge"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func patients(t *testing.T, from, to int) []byte {
	t.Helper()
	list := make([]map[string]any, 0, to-from)
	for i := from; i < to; i++ {
		list = append(list, map[string]any{
			"externalId": fmt.Sprintf("P%04d", i),
			"name":       fmt.Sprintf("Patient %d", i),
			"species":    "Canine",
		})
	}
	body, err := json.Marshal(map[string]any{"patients": list})
	require.NoError(t, err)
	return body
}

func withoutSyncStamp(d *bridge.Document) map[string]any {
	out := make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		if k != "lastSyncedAt" {
			out[k] = v
		}
	}
	return out
}

func TestIngest_IdempotentBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository()
	svc := bridge.NewService(repo, discardLogger(), bridge.DefaultWriteCeiling)
	body := patients(t, 0, 25)

	first, err := svc.Ingest(ctx, bridge.KindPatient, body)
	require.NoError(t, err)
	before, err := repo.Get(ctx, "patients", "P0007")
	require.NoError(t, err)

	second, err := svc.Ingest(ctx, bridge.KindPatient, body)
	require.NoError(t, err)
	after, err := repo.Get(ctx, "patients", "P0007")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, withoutSyncStamp(before), withoutSyncStamp(after))

	n, err := repo.Count(ctx, "patients")
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestIngest_CeilingAndContinuation(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository()
	svc := bridge.NewService(repo, discardLogger(), bridge.DefaultWriteCeiling)

	res, err := svc.Ingest(ctx, bridge.KindPatient, patients(t, 0, 600))
	require.NoError(t, err)
	assert.Equal(t, &bridge.BatchResult{Count: 490, Remaining: 110}, res)

	n, err := repo.Count(ctx, "patients")
	require.NoError(t, err)
	assert.Equal(t, 490, n)

	_, err = repo.Get(ctx, "patients", "P0490")
	assert.ErrorIs(t, err, bridge.ErrNotFound)

	// следующий батч начинается там, где остановился предыдущий
	res, err = svc.Ingest(ctx, bridge.KindPatient, patients(t, 490, 600))
	require.NoError(t, err)
	assert.Equal(t, &bridge.BatchResult{Count: 110, Remaining: 0}, res)

	n, err = repo.Count(ctx, "patients")
	require.NoError(t, err)
	assert.Equal(t, 600, n)
}

func TestIngest_MergeKeepsUnsentFields(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository()
	svc := bridge.NewService(repo, discardLogger(), bridge.DefaultWriteCeiling)

	_, err := svc.Ingest(ctx, bridge.KindClient, []byte(`{"clients": [{"externalId": "C1", "phone": "555-0100", "email": "a@clinic.test"}]}`))
	require.NoError(t, err)
	_, err = svc.Ingest(ctx, bridge.KindClient, []byte(`{"clients": [{"externalId": "C1", "phone": "555-0199"}]}`))
	require.NoError(t, err)

	doc, err := repo.Get(ctx, "clients", "C1")
	require.NoError(t, err)
	assert.Equal(t, "555-0199", doc.Data["phone"])
	assert.Equal(t, "a@clinic.test", doc.Data["email"])
	assert.Equal(t, bridge.Source, doc.Data["source"])
}

func TestIngest_RecalledRecordIsLiveAgain(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository()
	svc := bridge.NewService(repo, discardLogger(), bridge.DefaultWriteCeiling)

	_, err := svc.Ingest(ctx, bridge.KindPatient, []byte(`{"patients": [{"externalId": "P1", "deleted": true, "name": "Rex"}]}`))
	require.NoError(t, err)
	doc, err := repo.Get(ctx, "patients", "P1")
	require.NoError(t, err)
	assert.Equal(t, true, doc.Data["deleted"])

	// живая запись без поля deleted снимает пометку
	_, err = svc.Ingest(ctx, bridge.KindPatient, []byte(`{"patients": [{"externalId": "P1", "name": "Rex"}]}`))
	require.NoError(t, err)
	doc, err = repo.Get(ctx, "patients", "P1")
	require.NoError(t, err)
	assert.Equal(t, false, doc.Data["deleted"])
	assert.Equal(t, "Rex", doc.Data["name"])
}

func TestIngest_StoreFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository()
	svc := bridge.NewService(repo, discardLogger(), bridge.DefaultWriteCeiling)

	repo.FailNext(errors.New("store unavailable"))
	_, err := svc.Ingest(ctx, bridge.KindPatient, patients(t, 0, 10))
	require.Error(t, err)

	n, err := repo.Count(ctx, "patients")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngest_InvalidPayloadWritesNothing(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository()
	svc := bridge.NewService(repo, discardLogger(), bridge.DefaultWriteCeiling)

	body := `{"patients": [{"externalId": "P1"}, {"externalId": "P2"}, {"name": "no id"}]}`
	_, err := svc.Ingest(ctx, bridge.KindPatient, []byte(body))
	assert.ErrorIs(t, err, bridge.ErrInvalidPayload)

	n, err := repo.Count(ctx, "patients")
	require.NoError(t, err)
	assert.Zero(t, n)
}
