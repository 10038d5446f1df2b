package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"vetbridge/internal/domain/bridge"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	defaultBridgeURL = "http://localhost:8080"
	defaultAPIKey    = "dev_key"
	defaultDataDir   = ".vetbridge"
)

// DefaultCandidates типичные пути установки AVImark
var DefaultCandidates = []string{
	"C:/Avimark/Data",
	"D:/Avimark/Data",
	"E:/Avimark/Data",
	"C:/PMS/Data",
	"D:/PMS/Data",
	"E:/PMS/Data",
}

type Config struct {
	Env string

	SourceDir        string
	SourceCandidates []string
	ShadowDir        string
	ImportDir        string
	StateDBPath      string

	BridgeURL   string
	APIKey      string
	BatchSize   int
	MaxPerCycle int
	HTTPTimeout time.Duration
	MaxRetries  int

	SnapshotHelper     string
	SnapshotHelperArgs []string
	SnapshotTimeout    time.Duration
	CopyRetries        int
	CopyRetryDelay     time.Duration

	SyncSchedule string
	PollSchedule string

	OTLPEndpoint string
	OTLPInsecure bool
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("APP_ENV", EnvLocal)
	v.SetDefault("SOURCE_CANDIDATES", strings.Join(DefaultCandidates, ","))
	v.SetDefault("SHADOW_DIR", filepath.Join(dataDir, "shadow_data"))
	v.SetDefault("IMPORT_DIR", filepath.Join(dataDir, "import_queue"))
	v.SetDefault("STATE_DB_PATH", filepath.Join(dataDir, "connector.db"))
	v.SetDefault("BRIDGE_URL", defaultBridgeURL)
	v.SetDefault("BRIDGE_API_KEY", defaultAPIKey)
	v.SetDefault("BATCH_SIZE", bridge.DefaultWriteCeiling)
	v.SetDefault("MAX_PER_CYCLE", 5000)
	v.SetDefault("HTTP_TIMEOUT", 30*time.Second)
	v.SetDefault("MAX_RETRIES", 4)
	v.SetDefault("SNAPSHOT_TIMEOUT", 2*time.Minute)
	v.SetDefault("COPY_RETRIES", 3)
	v.SetDefault("COPY_RETRY_DELAY", 500*time.Millisecond)
	v.SetDefault("SYNC_SCHEDULE", "@every 5m")
	v.SetDefault("POLL_SCHEDULE", "@every 1m")
	v.SetDefault("OTLP_INSECURE", false)
}

// Load собирает конфигурацию коннектора: значения по умолчанию,
// необязательный YAML-файл, .env и переменные окружения (в порядке
// возрастания приоритета).
func Load(configFile string) (*Config, error) {
	envPath := ".env"
	if _, err := os.Stat(envPath); os.IsNotExist(err) {
		envPath = "../.env"
	}
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("ошибка загрузки .env файла: %w", err)
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v, filepath.Join(homeDir, defaultDataDir))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка чтения файла конфигурации: %w", err)
		}
	}

	cfg := &Config{
		Env:                v.GetString("APP_ENV"),
		SourceDir:          v.GetString("SOURCE_DIR"),
		SourceCandidates:   splitList(v.GetString("SOURCE_CANDIDATES"), ","),
		ShadowDir:          v.GetString("SHADOW_DIR"),
		ImportDir:          v.GetString("IMPORT_DIR"),
		StateDBPath:        v.GetString("STATE_DB_PATH"),
		BridgeURL:          strings.TrimRight(v.GetString("BRIDGE_URL"), "/"),
		APIKey:             v.GetString("BRIDGE_API_KEY"),
		BatchSize:          v.GetInt("BATCH_SIZE"),
		MaxPerCycle:        v.GetInt("MAX_PER_CYCLE"),
		HTTPTimeout:        v.GetDuration("HTTP_TIMEOUT"),
		MaxRetries:         v.GetInt("MAX_RETRIES"),
		SnapshotHelper:     v.GetString("SNAPSHOT_HELPER"),
		SnapshotHelperArgs: strings.Fields(v.GetString("SNAPSHOT_HELPER_ARGS")),
		SnapshotTimeout:    v.GetDuration("SNAPSHOT_TIMEOUT"),
		CopyRetries:        v.GetInt("COPY_RETRIES"),
		CopyRetryDelay:     v.GetDuration("COPY_RETRY_DELAY"),
		SyncSchedule:       v.GetString("SYNC_SCHEDULE"),
		PollSchedule:       v.GetString("POLL_SCHEDULE"),
		OTLPEndpoint:       v.GetString("OTLP_ENDPOINT"),
		OTLPInsecure:       v.GetBool("OTLP_INSECURE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}
	return cfg, nil
}

// MustLoad как Load, но паникует при ошибке
func MustLoad(configFile string) *Config {
	cfg, err := Load(configFile)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate проверяет конфигурацию; вызывается повторно после
// применения флагов командной строки.
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		errs = append(errs, fmt.Errorf("неизвестное окружение APP_ENV %q", c.Env))
	}
	if u, err := url.Parse(c.BridgeURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("BRIDGE_URL должен быть http(s) адресом, получено %q", c.BridgeURL))
	}
	if c.APIKey == "" {
		errs = append(errs, errors.New("BRIDGE_API_KEY не может быть пустым"))
	}
	if c.BatchSize <= 0 || c.BatchSize > bridge.DefaultWriteCeiling {
		errs = append(errs, fmt.Errorf("BATCH_SIZE должен быть в диапазоне 1..%d, получено %d", bridge.DefaultWriteCeiling, c.BatchSize))
	}
	if c.MaxPerCycle <= 0 {
		errs = append(errs, errors.New("MAX_PER_CYCLE должен быть положительным"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT должен быть положительным"))
	}
	if c.MaxRetries < 1 {
		errs = append(errs, errors.New("MAX_RETRIES должен быть не меньше 1"))
	}
	if c.SnapshotTimeout <= 0 {
		errs = append(errs, errors.New("SNAPSHOT_TIMEOUT должен быть положительным"))
	}
	if c.ShadowDir == "" {
		errs = append(errs, errors.New("SHADOW_DIR не может быть пустым"))
	}
	if c.ImportDir == "" {
		errs = append(errs, errors.New("IMPORT_DIR не может быть пустым"))
	}
	if c.StateDBPath == "" {
		errs = append(errs, errors.New("STATE_DB_PATH не может быть пустым"))
	}
	for name, spec := range map[string]string{"SYNC_SCHEDULE": c.SyncSchedule, "POLL_SCHEDULE": c.PollSchedule} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: неверное расписание %q: %w", name, spec, err))
		}
	}

	return errors.Join(errs...)
}

// IsProd проверяет, prod ли окружение
func (c *Config) IsProd() bool {
	return c.Env == EnvProd
}

// IsLocal проверяет, local ли окружение
func (c *Config) IsLocal() bool {
	return c.Env == EnvLocal || c.Env == ""
}

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
