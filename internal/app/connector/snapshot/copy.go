package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

var errChangedDuringCopy = errors.New("source changed during copy")

// CopyFacility копирует файлы без блокировок и проверяет, что источник
// не менялся во время копирования. Занятые или изменившиеся файлы
// копируются повторно ограниченное число раз.
type CopyFacility struct {
	retries    int
	retryDelay time.Duration
	log        *slog.Logger

	// вызывается между копированием и проверкой источника (для тестов)
	beforeVerify func(src string)
}

func NewCopyFacility(retries int, retryDelay time.Duration, log *slog.Logger) *CopyFacility {
	if retries < 0 {
		retries = 0
	}
	return &CopyFacility{
		retries:    retries,
		retryDelay: retryDelay,
		log:        log.With(slog.String("component", "snapshot_copy")),
	}
}

func (c *CopyFacility) Snapshot(ctx context.Context, src, dst string) error {
	return stage(ctx, "copy", src, dst, func(ctx context.Context, staging string) error {
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}

		var failed []string
		copied := 0
		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			from := filepath.Join(src, e.Name())
			to := filepath.Join(staging, e.Name())

			if err := c.copyWithRetry(ctx, from, to); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed = append(failed, fmt.Sprintf("%s: %v", e.Name(), err))
				continue
			}
			copied++
		}

		if len(failed) > 0 {
			return &Error{
				Err:    fmt.Errorf("%w: %d of %d files failed", ErrPartialCopy, len(failed), len(failed)+copied),
				Output: strings.Join(failed, "; "),
			}
		}

		c.log.Debug("snapshot copied", slog.Int("files", copied), slog.String("dst", staging))
		return nil
	})
}

func (c *CopyFacility) copyWithRetry(ctx context.Context, from, to string) error {
	var err error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err = copyConsistent(ctx, from, to, c.beforeVerify); err == nil {
			return nil
		}
		if !errors.Is(err, errChangedDuringCopy) && !isLockError(err) {
			return err
		}

		c.log.Warn("file busy, retrying copy",
			slog.String("file", from),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)

		if attempt == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", c.retries+1, err)
}

func copyConsistent(ctx context.Context, from, to string, beforeVerify func(string)) error {
	before, err := os.Stat(from)
	if err != nil {
		return err
	}

	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(to)
	if err != nil {
		return err
	}

	n, err := io.Copy(out, &ctxReader{ctx: ctx, r: in})
	if err == nil {
		err = out.Sync()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if beforeVerify != nil {
		beforeVerify(from)
	}

	after, err := os.Stat(from)
	if err != nil {
		return err
	}
	if n != before.Size() || after.Size() != before.Size() || !after.ModTime().Equal(before.ModTime()) {
		return fmt.Errorf("%w: %s", errChangedDuringCopy, filepath.Base(from))
	}

	return os.Chtimes(to, before.ModTime(), before.ModTime())
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
