package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Снять копию каталога AVImark без синхронизации",
	RunE: func(cmd *cobra.Command, _ []string) error {
		start := time.Now()
		src, err := app.Sync().Snapshot(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка снимка: %w", err)
		}
		fmt.Printf("%s %s -> %s за %v\n", green("Снимок готов:"), src, cfg.ShadowDir, time.Since(start).Round(time.Millisecond))
		return nil
	},
}
