package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/fatih/color"

	"vetbridge/internal/app/connector"
	"vetbridge/internal/domain/bridge"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusLabel(ok bool) string {
	if ok {
		return green("OK")
	}
	return red("ОШИБКИ")
}

func printReport(r *connector.SyncReport) error {
	if jsonOutput {
		return printJSON(os.Stdout, r)
	}

	mode := "инкрементальная"
	if r.Full {
		mode = "полная"
	}
	fmt.Printf("%s %s, %s, %v\n", bold("Синхронизация"), mode, statusLabel(r.Success), r.Duration.Round(time.Millisecond))
	if r.Source != "" {
		fmt.Printf("Источник: %s\n", r.Source)
	}

	kinds := make([]bridge.Kind, 0, len(r.Entities))
	for k := range r.Entities {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	for _, k := range kinds {
		e := r.Entities[k]
		if e.Missing {
			fmt.Printf("  %-16s %s\n", k, yellow("таблица не найдена"))
			continue
		}
		deferred := fmt.Sprint(e.Deferred)
		if e.Deferred > 0 {
			deferred = yellow(deferred)
		}
		fmt.Printf("  %-16s прочитано %d, без изменений %d, отправлено %d, применено %d, отложено %s",
			k, e.Read, e.Unchanged, e.Sent, e.Applied, deferred)
		if e.Invalid > 0 {
			fmt.Printf(", некорректных %s", yellow(e.Invalid))
		}
		if e.RejectedChunks > 0 {
			fmt.Printf(", отклонено батчей %s", red(e.RejectedChunks))
		}
		fmt.Println()
	}

	for _, e := range r.Errors {
		fmt.Printf("  %s %s %s: %s\n", red("!"), e.Entity, e.Operation, e.Error)
	}
	return nil
}
