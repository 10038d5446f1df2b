package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"
	"golang.org/x/term"

	"vetbridge/internal/app/connector"
	"vetbridge/internal/app/connector/config"
	"vetbridge/internal/utils/logger"
)

var (
	cfgFile    string
	cfg        *config.Config
	log        *slog.Logger
	app        *connector.App
	debug      bool
	jsonOutput bool
	sourceDir  string
	bridgeURL  string
	apiKey     string
)

var rootCmd = &cobra.Command{
	Use:   "vetbridge-connector",
	Short: "Коннектор клиники для облачного моста AVImark",
	Long: `Коннектор работает на компьютере клиники рядом с AVImark.

Он снимает согласованную копию каталога данных, читает таблицы dBase,
отправляет изменившиеся записи в облачный мост и забирает из его
почтового ящика команды, которые складываются в очередь импорта.`,
	PersistentPreRunE: setupApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if app != nil {
		if cerr := app.Close(context.Background()); cerr != nil {
			fmt.Fprintf(os.Stderr, "Ошибка завершения: %v\n", cerr)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// флаги командной строки важнее файла и окружения
	if sourceDir != "" {
		cfg.SourceDir = sourceDir
	}
	if bridgeURL != "" {
		cfg.BridgeURL = bridgeURL
	}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	if debug {
		cfg.Env = config.EnvLocal
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("некорректная конфигурация: %w", err)
	}

	log = logger.New(cfg.Env)

	app, err = connector.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("ошибка инициализации приложения: %w", err)
	}
	return nil
}

// standalone команды без конфигурации и подключения к мосту
func standalone(cmd *cobra.Command) {
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		env := config.EnvProd
		if debug {
			env = config.EnvLocal
		}
		log = logger.New(env)
		return nil
	}
}

func init() {
	cobra.OnInitialize(func() {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			color.NoColor = true
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл (yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
	rootCmd.PersistentFlags().StringVar(&sourceDir, "source", "", "каталог данных AVImark")
	rootCmd.PersistentFlags().StringVar(&bridgeURL, "bridge", "", "URL облачного моста")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "ключ доступа к мосту")

	rootCmd.AddCommand(runCmd, syncCmd, pollCmd, snapshotCmd, statusCmd, inspectCmd, seedCmd, detectCmd)
}
