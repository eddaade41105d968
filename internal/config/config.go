package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`

	// Store selects the document-store backend once at startup:
	// "postgres" (documents in PostgreSQL, signals over Redis) or
	// "memory" (in-process, no infra).
	Store     string `mapstructure:"store"`
	RedisAddr string `mapstructure:"redis_addr"`

	// BackendBaseURL points the display-name lookup at the job
	// backend. Empty means dev mode: the local account service answers
	// lookups itself.
	BackendBaseURL      string `mapstructure:"backend_base_url"`
	BackendServiceToken string `mapstructure:"backend_service_token"`

	CredentialTTL   time.Duration `mapstructure:"credential_ttl"`
	UnreadScanLimit int           `mapstructure:"unread_scan_limit"`

	// Secrets come from the environment, never the config file.
	DBDSN         string
	BackendSecret string
	StoreSecret   string
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store", "postgres")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("credential_ttl", "1h")
	v.SetDefault("unread_scan_limit", 50)

	// Missing file is fine, the defaults plus env cover dev.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.DBDSN = os.Getenv("DB_DSN")
	cfg.BackendSecret = os.Getenv("BACKEND_JWT_SECRET")
	cfg.StoreSecret = os.Getenv("STORE_JWT_SECRET")
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}
	return &cfg, nil
}
