package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"slices"
	"strings"
	"time"

	"golang.org/x/exp/slog"
)

const waitDelay = 2 * time.Second

// ExecFacility запускает внешний helper (например, скрипт теневой копии
// тома) с аргументами <args...> <src> <staging>. Ненулевой код выхода
// считается ошибкой, вывод helper'а попадает в текст ошибки.
type ExecFacility struct {
	command string
	args    []string
	log     *slog.Logger
}

func NewExecFacility(command string, args []string, log *slog.Logger) *ExecFacility {
	return &ExecFacility{
		command: command,
		args:    args,
		log:     log.With(slog.String("component", "snapshot_exec")),
	}
}

func (e *ExecFacility) Snapshot(ctx context.Context, src, dst string) error {
	path, err := exec.LookPath(e.command)
	if err != nil {
		return &Error{Op: "exec", Src: src, Dst: dst, Err: fmt.Errorf("%w: %v", ErrFacilityUnavailable, err)}
	}

	return stage(ctx, "exec", src, dst, func(ctx context.Context, staging string) error {
		args := append(slices.Clone(e.args), src, staging)
		cmd := exec.CommandContext(ctx, path, args...)
		cmd.WaitDelay = waitDelay

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		start := time.Now()
		runErr := cmd.Run()
		output := strings.TrimSpace(strings.TrimSpace(stdout.String()) + "\n" + strings.TrimSpace(stderr.String()))

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if runErr != nil {
			return &Error{Output: output, Err: fmt.Errorf("%w: %v", ErrFacilityFailed, runErr)}
		}

		e.log.Debug("snapshot helper finished",
			slog.String("helper", e.command),
			slog.Duration("took", time.Since(start)),
			slog.String("output", output),
		)
		return nil
	})
}
