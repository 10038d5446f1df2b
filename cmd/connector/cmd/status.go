package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"vetbridge/internal/app/connector"
)

var runsLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Состояние моста и последние циклы синхронизации",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runs, err := app.Storage().RecentRuns(ctx, runsLimit)
		if err != nil {
			return fmt.Errorf("ошибка чтения истории: %w", err)
		}

		hctx, cancel := context.WithTimeout(ctx, cfg.HTTPTimeout)
		defer cancel()
		healthErr := app.Bridge().HealthCheck(hctx)

		if jsonOutput {
			out := struct {
				Bridge      string                  `json:"bridge"`
				BridgeError string                  `json:"bridgeError,omitempty"`
				Runs        []*connector.SyncReport `json:"runs"`
			}{Bridge: cfg.BridgeURL, Runs: runs}
			if healthErr != nil {
				out.BridgeError = healthErr.Error()
			}
			return printJSON(os.Stdout, out)
		}

		if healthErr != nil {
			fmt.Printf("Мост %s: %s (%v)\n", cfg.BridgeURL, red("недоступен"), healthErr)
		} else {
			fmt.Printf("Мост %s: %s\n", cfg.BridgeURL, green("доступен"))
		}

		if len(runs) == 0 {
			fmt.Println("Синхронизация еще не выполнялась")
			return nil
		}

		fmt.Println()
		fmt.Println(bold("Последние циклы:"))
		for _, r := range runs {
			t := r.Totals()
			fmt.Printf("  %s  %-8s  %7v  отправлено %d, применено %d, отложено %d, ошибок %d\n",
				r.StartTime.Local().Format(time.DateTime),
				statusLabel(r.Success),
				r.Duration.Round(time.Millisecond),
				t.Sent, t.Applied, t.Deferred, len(r.Errors),
			)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&runsLimit, "limit", 10, "сколько последних циклов показать")
}
