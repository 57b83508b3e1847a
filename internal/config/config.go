// Package config provides application configuration loaded from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Retriever backends for nearest-neighbour search.
const (
	RetrieverMemory   = "memory"
	RetrieverPgVector = "pgvector"
)

// Config holds all application configuration.
type Config struct {
	Port     string
	APIKey   string
	LogLevel string

	// Snapshot inputs: catalog CSV directory, trained weights and sidecar.
	DataDir       string
	ModelPath     string
	ModelInfoPath string

	// ScenariosPath optionally overrides the built-in evaluation scenarios.
	ScenariosPath string

	// Retriever selects the nearest-neighbour backend; pgvector needs DatabaseURL.
	Retriever   string
	DatabaseURL string

	// PoolMaxConns caps the pgx pool; 0 keeps the driver default.
	PoolMaxConns int

	// Export pipeline (optional; admin export/train jobs are disabled when unset).
	ExportBaseURL string
	ExportAPIKey  string

	// Gemini tag suggestion (optional; disabled when the key is unset).
	GeminiAPIKey        string
	TagSuggestRateLimit float64

	// LabelRule selects which interactions count as positives when loading
	// the catalog (order_or_rating, order_only, any_interaction).
	LabelRule string

	ProfileCacheSize int

	// OTelMetricsExporter toggles the Prometheus /metrics endpoint ("prometheus" or "none").
	OTelMetricsExporter string
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat retrieves an environment variable as a float or returns a default value.
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// Load reads configuration from environment variables and returns a Config struct.
// It automatically loads .env file if it exists.
// Returns default values for any missing environment variables.
// API_KEY is required and the function will return an error if it's not set.
func Load() (*Config, error) {
	// Load .env file if it exists. Skip logging when absent (e.g. env from secrets/parameter store).
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		return nil, errors.New("API_KEY environment variable is required but not set")
	}

	retriever := getEnv("RETRIEVER", RetrieverMemory)
	if retriever != RetrieverMemory && retriever != RetrieverPgVector {
		return nil, fmt.Errorf("RETRIEVER must be %q or %q, got %q", RetrieverMemory, RetrieverPgVector, retriever)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if retriever == RetrieverPgVector && databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required when RETRIEVER=pgvector")
	}

	poolMaxConns := getEnvAsInt("POOL_MAX_CONNS", 0)
	if poolMaxConns < 0 {
		return nil, errors.New("POOL_MAX_CONNS must not be negative")
	}

	rateLimit := getEnvAsFloat("TAG_SUGGEST_RATE_LIMIT", 1)
	if rateLimit <= 0 {
		return nil, errors.New("TAG_SUGGEST_RATE_LIMIT must be a positive number")
	}

	profileCacheSize := getEnvAsInt("PROFILE_CACHE_SIZE", 4096)
	if profileCacheSize <= 0 {
		return nil, errors.New("PROFILE_CACHE_SIZE must be a positive integer")
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		APIKey:   apiKey,
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataDir:       getEnv("DATA_DIR", "data"),
		ModelPath:     getEnv("MODEL_PATH", "models/two_tower.bin"),
		ModelInfoPath: getEnv("MODEL_INFO_PATH", "models/model_info.json"),
		ScenariosPath: os.Getenv("SCENARIOS_PATH"),

		Retriever:    retriever,
		DatabaseURL:  databaseURL,
		PoolMaxConns: poolMaxConns,

		ExportBaseURL: os.Getenv("EXPORT_BASE_URL"),
		ExportAPIKey:  os.Getenv("EXPORT_API_KEY"),

		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		TagSuggestRateLimit: rateLimit,

		LabelRule:        getEnv("LABEL_RULE", "order_or_rating"),
		ProfileCacheSize: profileCacheSize,

		OTelMetricsExporter: getEnv("OTEL_METRICS_EXPORTER", "prometheus"),
	}

	return cfg, nil
}
