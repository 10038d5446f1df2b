package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"vetbridge/internal/app/connector/config"
	"vetbridge/internal/app/connector/snapshot"
)

var candidates []string

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Найти каталог данных AVImark",
	RunE: func(_ *cobra.Command, _ []string) error {
		dir, ok := snapshot.Detect(candidates)
		if !ok {
			fmt.Println(yellow("Каталог AVImark не найден. Проверены:"))
			for _, c := range candidates {
				fmt.Printf("  %s\n", c)
			}
			return fmt.Errorf("укажите каталог явно через --source или SOURCE_DIR")
		}
		fmt.Printf("%s %s\n", green("Найден:"), dir)
		return nil
	},
}

func init() {
	standalone(detectCmd)
	detectCmd.Flags().StringSliceVar(&candidates, "candidate", config.DefaultCandidates, "каталоги для проверки")
}
