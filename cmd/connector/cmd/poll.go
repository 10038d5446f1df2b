package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Один раз опросить почтовый ящик моста",
	RunE: func(cmd *cobra.Command, _ []string) error {
		report, err := app.Poller().Poll(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, report)
		}

		fmt.Printf("Получено команд: %d\n", report.Fetched)
		fmt.Printf("Исполнено: %s, с ошибкой: %d, повторных: %d\n", green(report.Executed), report.Failed, report.Redelivered)
		if report.AckErrors > 0 {
			fmt.Printf("Не подтверждено: %s (будут доставлены повторно)\n", red(report.AckErrors))
		}
		fmt.Printf("Очередь импорта: %s\n", cfg.ImportDir)
		return nil
	},
}
