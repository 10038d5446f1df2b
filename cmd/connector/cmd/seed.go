package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vetbridge/internal/app/connector"
)

var seedPatients int

var seedCmd = &cobra.Command{
	Use:   "seed <dir>",
	Short: "Создать тестовые таблицы Client, Patient и Schedule",
	Long: `Пишет в каталог таблицы dBase в формате AVImark с тестовыми данными.
Используется для проверки коннектора без настоящей базы клиники.`,
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := connector.Seed(args[0], seedPatients, time.Now()); err != nil {
			return err
		}
		fmt.Printf("%s %d пациентов, %d клиентов в %s\n", green("Создано:"), seedPatients, (seedPatients+1)/2, args[0])
		return nil
	},
}

func init() {
	standalone(seedCmd)
	seedCmd.Flags().IntVar(&seedPatients, "patients", 10, "число пациентов")
}
