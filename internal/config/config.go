package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config holds the runtime configuration for the analytics service: which
// execution engine to use, where its data lives, and how the HTTP surface
// behaves.
type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Engine selects the execution engine ("duckdb" or "postgres").
	// DataSource is engine-specific: a file root holding Parquet resource
	// directories for duckdb, a database URL for postgres.
	Engine     string `mapstructure:"ENGINE"`
	DataSource string `mapstructure:"DATA_SOURCE"`

	// CodeSystem restricts which coding system observation codes are
	// matched under; empty matches codings without a system.
	CodeSystem string `mapstructure:"CODE_SYSTEM"`

	// BaseResourceURL is stripped from stored resource identifiers before
	// joining across collections. Identifiers in the warehouse carry the
	// full resource URL.
	BaseResourceURL string `mapstructure:"BASE_RESOURCE_URL"`

	DBMaxConns int32 `mapstructure:"DB_MAX_CONNS"`
	DBMinConns int32 `mapstructure:"DB_MIN_CONNS"`

	// AuthJWTSecret enables bearer-token auth on the API when set.
	AuthJWTSecret string `mapstructure:"AUTH_JWT_SECRET"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("ENGINE", "duckdb")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("ENGINE")
	v.BindEnv("DATA_SOURCE")
	v.BindEnv("CODE_SYSTEM")
	v.BindEnv("BASE_RESOURCE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_JWT_SECRET")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DataSource == "" {
		return nil, fmt.Errorf("DATA_SOURCE is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}
