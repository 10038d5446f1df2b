package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	fullSync bool
	resetFP  bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Выполнить один цикл синхронизации",
	Long: `Снимает копию данных AVImark и отправляет в мост изменившиеся записи.

С флагом --full отправляются все записи, отпечатки не учитываются.
С флагом --reset локальные отпечатки стираются до начала цикла.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if resetFP {
			if err := app.Storage().ResetFingerprints(ctx, ""); err != nil {
				return fmt.Errorf("ошибка сброса отпечатков: %w", err)
			}
		}

		sync := app.Sync().Sync
		if fullSync {
			sync = app.Sync().SyncFull
		}

		report, err := sync(ctx)
		if report != nil {
			if perr := printReport(report); perr != nil {
				return perr
			}
		}
		if err != nil {
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}
		if !report.Success {
			return fmt.Errorf("синхронизация завершена с ошибками: %d", len(report.Errors))
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&fullSync, "full", false, "отправить все записи")
	syncCmd.Flags().BoolVar(&resetFP, "reset", false, "стереть локальные отпечатки перед циклом")
}
