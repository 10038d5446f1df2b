package connector

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"vetbridge/internal/app/connector/config"
	"vetbridge/internal/app/connector/snapshot"
	"vetbridge/internal/app/server/api"
	servercfg "vetbridge/internal/app/server/config"
	"vetbridge/internal/domain/bridge"
	"vetbridge/internal/domain/mailbox"
	"vetbridge/internal/infrastructure/storage/memory"
)

const testKey = "secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type healthyStore struct{}

func (healthyStore) Name() string { return "memory" }

func (healthyStore) Ping(_ context.Context) error { return nil }

// bridgeServer настоящий HTTP слой моста поверх хранилищ в памяти
type bridgeServer struct {
	URL     string
	docs    *memory.DocumentRepository
	queue   *memory.MailboxRepository
	mailbox *mailbox.Service
}

func newBridgeServer(t *testing.T, ceiling int) *bridgeServer {
	t.Helper()
	log := testLogger()

	cfg := &servercfg.Config{Env: servercfg.EnvLocal}
	cfg.Bridge.APIKey = testKey

	docs := memory.NewDocumentRepository()
	queue := memory.NewMailboxRepository()
	mb := mailbox.NewService(queue, log, mailbox.Config{})

	srv := httptest.NewServer(api.New(cfg, api.Services{
		Bridge:  bridge.NewService(docs, log, ceiling),
		Mailbox: mb,
		Health:  healthyStore{},
	}, log))
	t.Cleanup(srv.Close)

	return &bridgeServer{URL: srv.URL, docs: docs, queue: queue, mailbox: mb}
}

func testConfig(t *testing.T, bridgeURL string) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Env:             config.EnvLocal,
		SourceDir:       filepath.Join(root, "avimark", "Data"),
		ShadowDir:       filepath.Join(root, "shadow_data"),
		ImportDir:       filepath.Join(root, "import_queue"),
		StateDBPath:     filepath.Join(root, "connector.db"),
		BridgeURL:       bridgeURL,
		APIKey:          testKey,
		BatchSize:       bridge.DefaultWriteCeiling,
		MaxPerCycle:     10000,
		HTTPTimeout:     5 * time.Second,
		MaxRetries:      3,
		SnapshotTimeout: 10 * time.Second,
		CopyRetries:     1,
		CopyRetryDelay:  time.Millisecond,
		SyncSchedule:    "@every 1m",
		PollSchedule:    "@every 1m",
	}
}

func newTestClient(cfg *config.Config) *httpClient {
	c := NewHTTPClient(cfg, testLogger())
	c.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return c
}

func newTestStorage(t *testing.T, cfg *config.Config) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(cfg.StateDBPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestSync(t *testing.T, cfg *config.Config, b Bridge) (*SyncService, *SQLiteStorage) {
	t.Helper()
	state := newTestStorage(t, cfg)
	facility := snapshot.NewCopyFacility(cfg.CopyRetries, cfg.CopyRetryDelay, testLogger())
	return NewSyncService(cfg, facility, b, state, testLogger()), state
}
