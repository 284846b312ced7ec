package main

import (
	"flag"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

const (
	storageMemory = "memory"
	storageSQLite = "sqlite"
)

// config はプロセス設定. 環境変数で既定値を与え, フラグで上書きする
type config struct {
	Addr                string        `env:"GATEWAY_ADDR" envDefault:":10080"`
	OpsAddr             string        `env:"GATEWAY_OPS_ADDR" envDefault:"127.0.0.1:10081"`
	SiteOrigin          string        `env:"GATEWAY_SITE_ORIGIN" envDefault:"http://localhost:8080"`
	APIOrigin           string        `env:"GATEWAY_API_ORIGIN" envDefault:"https://api.mudanzas.example.com"`
	ObjectStoreOrigin   string        `env:"GATEWAY_OBJECT_STORE_ORIGIN" envDefault:"https://mudanzas-assets.s3.amazonaws.com"`
	ConfigDir           string        `env:"GATEWAY_CONFIG_DIR" envDefault:"./configs"`
	LogDir              string        `env:"GATEWAY_LOG_DIR" envDefault:"./logs"`
	LogLevel            string        `env:"GATEWAY_LOG_LEVEL" envDefault:"info"`
	LogStderr           bool          `env:"GATEWAY_LOG_STDERR" envDefault:"true"`
	Storage             string        `env:"GATEWAY_STORAGE" envDefault:"memory"`
	DBPath              string        `env:"GATEWAY_DB_PATH" envDefault:"./cache/gateway.db"`
	UserAgent           string        `env:"GATEWAY_USER_AGENT" envDefault:"assetgateway/1.0"`
	FetchTimeout        time.Duration `env:"GATEWAY_FETCH_TIMEOUT" envDefault:"30s"`
	MaxBodySize         int64         `env:"GATEWAY_MAX_BODY_SIZE" envDefault:"33554432"`
	ClientIdleTimeout   time.Duration `env:"GATEWAY_CLIENT_IDLE_TIMEOUT" envDefault:"30m"`
	MaxNotifications    int           `env:"GATEWAY_MAX_NOTIFICATIONS" envDefault:"100"`
	PolicyWatchInterval time.Duration `env:"GATEWAY_POLICY_WATCH_INTERVAL" envDefault:"10s"`
	MetricsSaveInterval time.Duration `env:"GATEWAY_METRICS_SAVE_INTERVAL" envDefault:"1m"`
	ShutdownTimeout     time.Duration `env:"GATEWAY_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	InstallOnStart      bool          `env:"GATEWAY_INSTALL_ON_START" envDefault:"false"`
}

// loadConfig は環境変数とコマンドライン引数から設定を読み込む
func loadConfig(args []string) (*config, error) {
	cfg := &config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Gateway server address")
	fs.StringVar(&cfg.OpsAddr, "ops-addr", cfg.OpsAddr, "Ops server address (metrics, health, control endpoints)")
	fs.StringVar(&cfg.SiteOrigin, "site-origin", cfg.SiteOrigin, "Origin of the proxied site")
	fs.StringVar(&cfg.APIOrigin, "api-origin", cfg.APIOrigin, "Origin of the slider API")
	fs.StringVar(&cfg.ObjectStoreOrigin, "object-store-origin", cfg.ObjectStoreOrigin, "Origin of the image bucket")
	fs.StringVar(&cfg.ConfigDir, "config-dir", cfg.ConfigDir, "Configuration directory")
	fs.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "Log directory")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Storage, "storage", cfg.Storage, "Cache storage backend (memory, sqlite)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", cfg.FetchTimeout, "Network fetch timeout")
	fs.DurationVar(&cfg.MetricsSaveInterval, "metrics-save-interval", cfg.MetricsSaveInterval, "Metrics save interval")
	fs.BoolVar(&cfg.InstallOnStart, "install", cfg.InstallOnStart, "Run install on start")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	switch c.Storage {
	case storageMemory:
	case storageSQLite:
		if c.DBPath == "" {
			return errors.New("sqlite storage requires a database path")
		}
	default:
		return errors.Errorf("unknown storage backend %q", c.Storage)
	}
	if c.SiteOrigin == "" {
		return errors.New("site origin is required")
	}
	if c.MaxNotifications < 1 {
		return errors.Errorf("max notifications must be positive, got %d", c.MaxNotifications)
	}
	return nil
}
