package connector

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetbridge/internal/domain/mailbox"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		cmd  mailbox.Command
		want string
	}{
		{mailbox.Command{ID: "c1", Type: "export_invoice"}, "cmd_c1_export_invoice.json"},
		{mailbox.Command{ID: "../../etc", Type: "a b/c"}, "cmd__etc_a_b_c.json"},
		{mailbox.Command{ID: "0b6f-42", Type: "update.patient"}, "cmd_0b6f-42_update_patient.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FileName(tt.cmd))
	}
}

func TestImportQueueExecutor(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "import_queue")
	e := NewImportQueueExecutor(dir, testLogger())
	ctx := context.Background()

	cmd := mailbox.Command{ID: "c1", Type: "export_invoice", Payload: json.RawMessage(`{"n":1}`)}
	require.NoError(t, e.Execute(ctx, cmd))

	target := filepath.Join(dir, FileName(cmd))
	first, err := os.ReadFile(target)
	require.NoError(t, err)

	// повторное исполнение не переписывает файл
	cmd.Payload = json.RawMessage(`{"n":2}`)
	require.NoError(t, e.Execute(ctx, cmd))
	second, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not remain")
}

func TestImportQueueExecutor_CancelledContext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "import_queue")
	e := NewImportQueueExecutor(dir, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, e.Execute(ctx, mailbox.Command{ID: "c1", Type: "t"}), context.Canceled)
	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
