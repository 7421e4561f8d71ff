// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or ~/.localrag/config.yaml)
//  3. Default values
//
// The Config value is constructed exactly once at startup and passed to
// every component constructor. No component reads configuration from
// ambient global state.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Defaults for document ingestion.
//
// ChunkSize/ChunkOverlap match the splitter parameters the retrieval
// pipeline was tuned against; changing them invalidates nothing but
// degrades existing indexes until documents are re-ingested.
const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 100

	// DefaultSearchTopK is the number of passages retrieved per query.
	DefaultSearchTopK = 4

	// DefaultGenerationModel is the Gemini model used for rewriting and answering.
	DefaultGenerationModel = "gemini-2.5-flash"

	// DefaultEmbedderModel is the Gemini embedding model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the chunks table schema uses vector(768).
	DefaultEmbedderModel = "gemini-embedding-001"
)

// Config stores application configuration.
type Config struct {
	// Generation service
	ModelName   string  `mapstructure:"model_name"`
	Temperature float32 `mapstructure:"temperature"`
	TopP        float32 `mapstructure:"top_p"`

	// Embedding / retrieval
	EmbedderModel string `mapstructure:"embedder_model"`
	SearchTopK    int    `mapstructure:"search_top_k"`

	// Ingestion
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"` // SENSITIVE: never logged
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// HTTP server
	ListenAddr  string   `mapstructure:"listen_addr"`
	RateBurst   int      `mapstructure:"rate_burst"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".localrag"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("model_name", DefaultGenerationModel)
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.95)

	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("search_top_k", DefaultSearchTopK)

	v.SetDefault("chunk_size", DefaultChunkSize)
	v.SetDefault("chunk_overlap", DefaultChunkOverlap)

	// PostgreSQL defaults for local development.
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "localrag")
	v.SetDefault("postgres_password", "localrag_dev_password")
	v.SetDefault("postgres_db_name", "localrag")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("listen_addr", "localhost:8080")
	v.SetDefault("rate_burst", 60)
	v.SetDefault("cors_origins", []string{})
	v.SetDefault("trust_proxy", false)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read by the genai client itself, not via viper.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "LOCALRAG_MODEL_NAME")
	mustBind("embedder_model", "LOCALRAG_EMBEDDER_MODEL")
	mustBind("listen_addr", "LOCALRAG_LISTEN_ADDR")
	mustBind("rate_burst", "LOCALRAG_RATE_BURST")
	mustBind("postgres_password", "LOCALRAG_POSTGRES_PASSWORD")
}
