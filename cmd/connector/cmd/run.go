package cmd

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Запустить коннектор в режиме демона",
	Long: `Синхронизация и опрос почтового ящика выполняются сразу после старта,
затем по расписанию SYNC_SCHEDULE и POLL_SCHEDULE. Остановка по Ctrl+C
или SIGTERM дожидается завершения текущих задач.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return app.Run(cmd.Context())
	},
}
