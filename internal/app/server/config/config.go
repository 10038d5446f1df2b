package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPath  = ".env"
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	// StoreAtomicWriteLimit максимальное число операций в одной атомарной записи хранилища
	StoreAtomicWriteLimit = 500
	// DefaultWriteCeiling лимит записей на один батч с запасом от StoreAtomicWriteLimit
	DefaultWriteCeiling = 490

	defaultAPIKey = "dev_key"
)

type Config struct {
	Env     string
	DB      db
	Server  server
	Bridge  bridge
	Mailbox mailbox
}

type db struct {
	DatabaseURI string `env:"DATABASE_URI"`
	Migrations  string `env:"MIGRATIONS_PATH"`
}

type server struct {
	RunAddress string `env:"RUN_ADDRESS"`
}

type bridge struct {
	APIKey       string `env:"BRIDGE_API_KEY"`
	WriteCeiling int    `env:"WRITE_CEILING"`
}

type mailbox struct {
	PageSize       int           `env:"MAILBOX_PAGE_SIZE"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT"`
	MaxAttempts    int           `env:"MAX_ATTEMPTS"`
	ReaperInterval time.Duration `env:"REAPER_INTERVAL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", EnvLocal)
	v.SetDefault("run_address", ":8080")
	v.SetDefault("migrations_path", "migrations")
	v.SetDefault("bridge_api_key", defaultAPIKey)
	v.SetDefault("write_ceiling", DefaultWriteCeiling)
	v.SetDefault("mailbox_page_size", 10)
	v.SetDefault("fetch_timeout", 5*time.Minute)
	v.SetDefault("max_attempts", 5)
	v.SetDefault("reaper_interval", time.Minute)
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// .env не обязателен, в проде все приходит из окружения
	_ = godotenv.Load(envPath)

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env: v.GetString("app_env"),
		DB: db{
			DatabaseURI: v.GetString("database_uri"),
			Migrations:  v.GetString("migrations_path"),
		},
		Server: server{RunAddress: v.GetString("run_address")},
		Bridge: bridge{
			APIKey:       v.GetString("bridge_api_key"),
			WriteCeiling: v.GetInt("write_ceiling"),
		},
		Mailbox: mailbox{
			PageSize:       v.GetInt("mailbox_page_size"),
			FetchTimeout:   v.GetDuration("fetch_timeout"),
			MaxAttempts:    v.GetInt("max_attempts"),
			ReaperInterval: v.GetDuration("reaper_interval"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// MustLoad как Load, но паникует при ошибке
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("unknown APP_ENV %q", c.Env))
	}
	if c.Server.RunAddress == "" {
		errs = append(errs, errors.New("RUN_ADDRESS is required"))
	}
	if c.Bridge.APIKey == "" {
		errs = append(errs, errors.New("BRIDGE_API_KEY is required"))
	}
	if c.Env == EnvProd && c.Bridge.APIKey == defaultAPIKey {
		errs = append(errs, errors.New("BRIDGE_API_KEY must be changed in prod"))
	}
	if c.Bridge.WriteCeiling <= 0 || c.Bridge.WriteCeiling > StoreAtomicWriteLimit {
		errs = append(errs, fmt.Errorf("WRITE_CEILING must be in 1..%d, got %d", StoreAtomicWriteLimit, c.Bridge.WriteCeiling))
	}
	if c.Mailbox.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("MAILBOX_PAGE_SIZE must be positive, got %d", c.Mailbox.PageSize))
	}
	if c.Mailbox.FetchTimeout <= 0 {
		errs = append(errs, errors.New("FETCH_TIMEOUT must be positive"))
	}
	if c.Mailbox.MaxAttempts <= 0 {
		errs = append(errs, errors.New("MAX_ATTEMPTS must be positive"))
	}
	if c.Mailbox.ReaperInterval <= 0 {
		errs = append(errs, errors.New("REAPER_INTERVAL must be positive"))
	}

	return errors.Join(errs...)
}
