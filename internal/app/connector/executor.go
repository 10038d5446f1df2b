package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"golang.org/x/exp/slog"

	"vetbridge/internal/domain/mailbox"
)

// Executor исполняет одну команду из почтового ящика. Повторное
// исполнение той же команды не должно менять результат.
type Executor interface {
	Execute(ctx context.Context, cmd mailbox.Command) error
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ImportQueueExecutor безопасный режим: команда не пишется в таблицы
// AVImark, а складывается файлом в каталог очереди импорта.
type ImportQueueExecutor struct {
	dir string
	log *slog.Logger
}

func NewImportQueueExecutor(dir string, log *slog.Logger) *ImportQueueExecutor {
	return &ImportQueueExecutor{
		dir: dir,
		log: log.With(slog.String("component", "import_queue")),
	}
}

// FileName имя файла команды в очереди импорта
func FileName(cmd mailbox.Command) string {
	return fmt.Sprintf("cmd_%s_%s.json", unsafeName.ReplaceAllString(cmd.ID, "_"), unsafeName.ReplaceAllString(cmd.Type, "_"))
}

func (e *ImportQueueExecutor) Execute(ctx context.Context, cmd mailbox.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("ошибка создания очереди импорта: %w", err)
	}

	target := filepath.Join(e.dir, FileName(cmd))
	if _, err := os.Stat(target); err == nil {
		e.log.Debug("Команда уже в очереди импорта", slog.String("file", target))
		return nil
	}

	data, err := json.MarshalIndent(cmd, "", "  ")
	if err != nil {
		return fmt.Errorf("ошибка сериализации команды: %w", err)
	}

	if err := writeFileAtomic(e.dir, target, data); err != nil {
		return err
	}

	e.log.Info("Команда сохранена в очередь импорта",
		slog.String("id", cmd.ID),
		slog.String("type", cmd.Type),
		slog.String("file", filepath.Base(target)),
	)
	return nil
}

// writeFileAtomic пишет во временный файл того же каталога и переименовывает
func writeFileAtomic(dir, target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, ".cmd-*.tmp")
	if err != nil {
		return fmt.Errorf("ошибка создания временного файла: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("ошибка записи команды: %w", err)
	}

	if err = os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("ошибка переименования файла команды: %w", err)
	}
	return nil
}
