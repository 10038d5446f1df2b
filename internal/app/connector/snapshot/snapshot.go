// Package snapshot копирует файлы живой legacy-базы в изолированную
// директорию, не захватывая блокировок на исходных файлах.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

var (
	ErrSourceNotFound      = errors.New("source directory not found")
	ErrFacilityUnavailable = errors.New("snapshot facility unavailable")
	ErrFacilityFailed      = errors.New("snapshot facility failed")
	ErrPartialCopy         = errors.New("partial copy")
	ErrTimeout             = errors.New("snapshot timed out")
)

// Facility механизм получения согласованной копии директории:
// теневая копия тома, снапшот btrfs/zfs или копирование с повторами.
type Facility interface {
	Snapshot(ctx context.Context, src, dst string) error
}

// Error ошибка снапшота с захваченным выводом внешнего процесса
type Error struct {
	Op     string
	Src    string
	Dst    string
	Output string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("snapshot %s %s -> %s: %v", e.Op, e.Src, e.Dst, e.Err)
	if e.Output != "" {
		msg += ": " + e.Output
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New выбирает реализацию: внешний helper, если он задан, иначе копирование.
func New(helper string, args []string, retries int, retryDelay time.Duration, log *slog.Logger) Facility {
	if helper != "" {
		return NewExecFacility(helper, args, log)
	}
	return NewCopyFacility(retries, retryDelay, log)
}

// stage готовит чистую staging-директорию рядом с dst, вызывает fill и
// только при полном успехе подменяет dst. При ошибке или таймауте dst
// не трогается, а staging удаляется.
func stage(ctx context.Context, op, src, dst string, fill func(ctx context.Context, staging string) error) error {
	st, err := os.Stat(src)
	if err != nil || !st.IsDir() {
		return &Error{Op: op, Src: src, Dst: dst, Err: ErrSourceNotFound}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return &Error{Op: op, Src: src, Dst: dst, Err: fmt.Errorf("create parent: %w", err)}
	}

	staging := dst + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return &Error{Op: op, Src: src, Dst: dst, Err: fmt.Errorf("clean staging: %w", err)}
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return &Error{Op: op, Src: src, Dst: dst, Err: fmt.Errorf("create staging: %w", err)}
	}

	err = fill(ctx, staging)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.RemoveAll(staging)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &Error{Op: op, Src: src, Dst: dst, Err: fmt.Errorf("%w: %v", ErrTimeout, err)}
		}
		var se *Error
		if errors.As(err, &se) {
			se.Op, se.Src, se.Dst = op, src, dst
			return se
		}
		return &Error{Op: op, Src: src, Dst: dst, Err: err}
	}

	return swap(staging, dst)
}

func swap(staging, dst string) error {
	old := dst + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clean previous snapshot: %w", err)
	}

	hadPrevious := false
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			_ = os.RemoveAll(staging)
			return fmt.Errorf("move previous snapshot: %w", err)
		}
		hadPrevious = true
	}

	if err := os.Rename(staging, dst); err != nil {
		if hadPrevious {
			_ = os.Rename(old, dst)
		}
		_ = os.RemoveAll(staging)
		return fmt.Errorf("publish snapshot: %w", err)
	}

	if hadPrevious {
		_ = os.RemoveAll(old)
	}
	return nil
}

// Detect ищет директорию legacy-базы среди кандидатов: подходит первая,
// в которой есть Client.dbf или Patient.dbf (без учета регистра).
func Detect(candidates []string) (string, bool) {
	for _, dir := range candidates {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := strings.ToLower(e.Name())
			if name == "client.dbf" || name == "patient.dbf" {
				return dir, true
			}
		}
	}
	return "", false
}
