// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (SILVIA_* prefix, plus DATABASE_URL)
//  2. Config file (~/.silvia/config.yaml)
//  3. Default values
//
// Categories:
//   - AI: generation model, embedder model, default temperature
//   - Storage: PostgreSQL connection (see storage.go)
//   - Tools: Stripe secret key, legal-corpus endpoint
//   - Server: HTTP listen address
//
// Sensitive values (Stripe key, database password) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Sentinel errors for configuration validation.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidModelName indicates the generation model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model name is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidTemperature indicates the default temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")
)

const (
	// DefaultModelName is the provider-qualified generation model used when a
	// persona does not specify its own model.
	DefaultModelName = "googleai/gemini-2.5-flash"

	// DefaultEmbedderModel is the embedding model used for chunk and query vectors.
	// text-embedding-004 outputs 768 dimensions, matching the kb_chunks schema.
	DefaultEmbedderModel = "text-embedding-004"

	// DefaultTemperature is the sampling temperature for personas created
	// without an explicit value.
	DefaultTemperature = 0.3

	// DefaultListenAddr is the default HTTP listen address for silvia serve.
	DefaultListenAddr = "localhost:8080"
)

// Config stores application configuration.
type Config struct {
	// AI configuration
	ModelName     string  `mapstructure:"model_name"`
	EmbedderModel string  `mapstructure:"embedder_model"`
	Temperature   float64 `mapstructure:"temperature"`

	// PostgreSQL configuration (see storage.go for DSN helpers)
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Tool backends
	StripeSecretKey string `mapstructure:"stripe_secret_key"`
	LexCorpusURL    string `mapstructure:"lex_corpus_url"`

	// HTTP server
	ListenAddr string `mapstructure:"listen_addr"`
}

// Load reads configuration from file and environment.
// Missing config file is not an error; defaults and env vars apply.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("model_name", DefaultModelName)
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("temperature", DefaultTemperature)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "silvia")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "silvia")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("stripe_secret_key", "")
	v.SetDefault("lex_corpus_url", "")
	v.SetDefault("listen_addr", DefaultListenAddr)

	v.SetEnvPrefix("SILVIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// configDir returns the silvia configuration directory (~/.silvia).
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".silvia"), nil
}
