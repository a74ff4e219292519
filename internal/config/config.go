package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Env                 string        `mapstructure:"ENV"`
	Port                string        `mapstructure:"PORT"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	Store               string        `mapstructure:"STORE"`
	AdminKey            string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed         string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB     int64         `mapstructure:"MAX_UPLOAD_MB"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	SubmitRateLimit     int64         `mapstructure:"SUBMIT_RATE_LIMIT"`
	SubmitRateWindow    time.Duration `mapstructure:"SUBMIT_RATE_WINDOW"`
	DepartmentCacheTTL  time.Duration `mapstructure:"DEPARTMENT_CACHE_TTL"`
	GeocoderURL         string        `mapstructure:"GEOCODER_URL"`
	GeocoderUserAgent   string        `mapstructure:"GEOCODER_USER_AGENT"`
	GeocoderMinInterval time.Duration `mapstructure:"GEOCODER_MIN_INTERVAL"`
	SeedDepartments     bool          `mapstructure:"SEED_DEPARTMENTS"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()
	return load(v)
}

func load(v *viper.Viper) (Config, error) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SUBMIT_RATE_LIMIT", 20)
	v.SetDefault("SUBMIT_RATE_WINDOW", "24h")
	v.SetDefault("DEPARTMENT_CACHE_TTL", "30s")
	v.SetDefault("GEOCODER_URL", "")
	v.SetDefault("GEOCODER_USER_AGENT", "civicdesk-backend")
	v.SetDefault("GEOCODER_MIN_INTERVAL", "1s")
	v.SetDefault("SEED_DEPARTMENTS", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	if cfg.Store == "" {
		cfg.Store = StorePostgres
		if cfg.DatabaseURL == "" {
			cfg.Store = StoreMemory
		}
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required when STORE=%s", StorePostgres)
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE %q", cfg.Store)
	}
	if cfg.SubmitRateLimit <= 0 {
		return Config{}, fmt.Errorf("SUBMIT_RATE_LIMIT must be positive")
	}
	return cfg, nil
}
