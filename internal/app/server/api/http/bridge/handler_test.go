package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"vetbridge/internal/app/server/api/http/apierr"
	"vetbridge/internal/app/server/api/http/middleware"
	"vetbridge/internal/app/server/api/http/middleware/apikey"
	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
	"vetbridge/internal/infrastructure/storage/memory"
)

const (
	testKey   = "secret"
	keyHeader = "x-api-key: " + testKey
)

type testEnv struct {
	api  humatest.TestAPI
	docs *memory.DocumentRepository
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	apierr.Install()

	cfg := huma.DefaultConfig("Test API", "1.0.0")
	cfg.CreateHooks = nil
	_, api := humatest.New(t, cfg)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	docs := memory.NewDocumentRepository()
	ingest := bridge.NewService(docs, log, bridge.DefaultWriteCeiling)
	mb := mailbox.NewService(memory.NewMailboxRepository(), log, mailbox.Config{PageSize: 10})

	mws := middleware.NewChain().Build(apikey.New(testKey, log).Middleware())
	NewHandler(ingest, mb, log, mws).SetupRoutes(api)

	return &testEnv{api: api, docs: docs}
}

func patientsJSON(from, to int) string {
	var b strings.Builder
	b.WriteString(`{"patients":[`)
	for i := from; i < to; i++ {
		if i > from {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, `{"externalId":"P%04d","name":"Patient %d","ownerId":"C1"}`, i, i)
	}
	b.WriteString(`]}`)
	return b.String()
}

func (e *testEnv) count(t *testing.T, collection string) int {
	t.Helper()
	n, err := e.docs.Count(context.Background(), collection)
	require.NoError(t, err)
	return n
}

func TestIngest_Unauthorized(t *testing.T) {
	tests := []struct {
		name    string
		headers []any
	}{
		{name: "missing key"},
		{name: "wrong key", headers: []any{"x-api-key: dev_key"}},
		{name: "key prefix", headers: []any{"x-api-key: secre"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)

			args := append(tt.headers, strings.NewReader(patientsJSON(0, 5)))
			resp := env.api.Post("/bridge/patients", args...)

			assert.Equal(t, http.StatusUnauthorized, resp.Code)
			assert.JSONEq(t, `{"error":"Unauthorized"}`, resp.Body.String())
			assert.Zero(t, env.count(t, "patients"))
		})
	}
}

func TestIngest_Success(t *testing.T) {
	env := setup(t)

	resp := env.api.Post("/bridge/patients", keyHeader, strings.NewReader(patientsJSON(0, 3)))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"success":true,"count":3,"remaining":0}`, resp.Body.String())
	assert.Equal(t, 3, env.count(t, "patients"))

	doc, err := env.docs.Get(context.Background(), "patients", "P0001")
	require.NoError(t, err)
	assert.Equal(t, "Client #C1", doc.Data["owner"])
	assert.Equal(t, "avimark", doc.Data["source"])
}

func TestIngest_Ceiling(t *testing.T) {
	env := setup(t)

	resp := env.api.Post("/bridge/patients", keyHeader, strings.NewReader(patientsJSON(0, 600)))

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"success":true,"count":490,"remaining":110}`, resp.Body.String())
	assert.Equal(t, 490, env.count(t, "patients"))
}

func TestIngest_Entities(t *testing.T) {
	tests := []struct {
		path       string
		body       string
		collection string
	}{
		{path: "/bridge/clients", body: `{"clients":[{"externalId":"C1","firstName":"Ann"}]}`, collection: "clients"},
		{path: "/bridge/calendar", body: `{"events":[{"externalId":"A1","start":"2024-06-20T09:00:00Z"}]}`, collection: "calendar_events"},
		{path: "/bridge/calendar-events", body: `{"events":[{"externalId":"A2","start":"2024-06-20T09:00:00Z"}]}`, collection: "calendar_events"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			env := setup(t)
			resp := env.api.Post(tt.path, keyHeader, strings.NewReader(tt.body))

			assert.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
			assert.Equal(t, 1, env.count(t, tt.collection))
		})
	}
}

func TestIngest_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not an array", body: `{"patients":{"externalId":"1"}}`},
		{name: "missing externalId", body: `{"patients":[{"externalId":"1"},{"name":"x"}]}`},
		{name: "not json", body: `patients`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			resp := env.api.Post("/bridge/patients", keyHeader, strings.NewReader(tt.body))

			assert.Equal(t, http.StatusBadRequest, resp.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.True(t, strings.HasPrefix(body["error"], "Invalid payload"), body["error"])
			assert.Zero(t, env.count(t, "patients"))
		})
	}
}

func TestIngest_UnknownEntity(t *testing.T) {
	env := setup(t)
	resp := env.api.Post("/bridge/invoices", keyHeader, strings.NewReader(`{"invoices":[]}`))

	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Contains(t, resp.Body.String(), `"error"`)
}

func enqueue(t *testing.T, env *testEnv, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		resp := env.api.Post("/bridge/exports", keyHeader, map[string]any{
			"type":    "export_invoice",
			"payload": map[string]any{"invoiceId": fmt.Sprintf("I%d", i)},
		})
		require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

		var out commandResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
		ids = append(ids, out.Command.ID)
	}
	return ids
}

func fetch(t *testing.T, env *testEnv) []mailbox.Command {
	t.Helper()
	resp := env.api.Get("/bridge/pending-exports", keyHeader)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var out pendingResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out.Commands
}

func TestPendingExports(t *testing.T) {
	env := setup(t)

	resp := env.api.Get("/bridge/pending-exports", keyHeader)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"commands":[]}`, resp.Body.String())

	ids := enqueue(t, env, 12)

	first := fetch(t, env)
	require.Len(t, first, 10)
	assert.Equal(t, ids[0], first[0].ID)
	assert.Equal(t, mailbox.StatusFetched, first[0].Status)
	assert.NotNil(t, first[0].FetchedAt)
	assert.JSONEq(t, `{"invoiceId":"I0"}`, string(first[0].Payload))

	assert.Len(t, fetch(t, env), 2)
	assert.Empty(t, fetch(t, env))
}

func TestPendingExports_Unauthorized(t *testing.T) {
	env := setup(t)
	enqueue(t, env, 1)

	resp := env.api.Get("/bridge/pending-exports")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	// команда не была выдана
	assert.Len(t, fetch(t, env), 1)
}

func TestAck(t *testing.T) {
	env := setup(t)
	ids := enqueue(t, env, 2)

	// еще не выдана
	resp := env.api.Post("/bridge/commands/"+ids[0]+"/ack", keyHeader, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())

	fetch(t, env)

	resp = env.api.Post("/bridge/commands/"+ids[0]+"/ack", keyHeader, map[string]any{"status": "done"})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var out commandResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, mailbox.StatusDone, out.Command.Status)

	resp = env.api.Post("/bridge/commands/"+ids[0]+"/ack", keyHeader, map[string]any{"status": "failed"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = env.api.Post("/bridge/commands/"+ids[1]+"/ack", keyHeader, map[string]any{"status": "failed", "error": "file locked"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.Equal(t, "file locked", out.Command.LastError)

	resp = env.api.Post("/bridge/commands/missing/ack", keyHeader, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = env.api.Post("/bridge/commands/"+ids[1]+"/ack", keyHeader, map[string]any{"status": "pending"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), `"error"`)
}

func TestEnqueue_Validation(t *testing.T) {
	env := setup(t)

	resp := env.api.Post("/bridge/exports", keyHeader, map[string]any{"type": ""})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}
