// Package config loads environment-sourced configuration.
//
// Values come from the process environment, optionally seeded from a .env
// file in the working directory. Required identifiers that are missing cause
// Load to fail immediately with a message naming every absent variable, so
// misconfiguration surfaces at startup rather than mid-request.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server      ServerConfig
	ObjectStore ObjectStoreConfig
	Extractor   ExtractorConfig
	Answerer    AnswererConfig
	Cache       CacheConfig
	Pipeline    PipelineConfig
	Storage     StorageConfig
	Log         LogConfig
}

type ServerConfig struct {
	Port int
	// Token guards the administrative HTTP routes. Empty disables auth.
	Token string
}

type ObjectStoreConfig struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

type ExtractorConfig struct {
	BaseURL      string
	PollInterval time.Duration
}

type AnswererConfig struct {
	BaseURL      string
	IndexID      string
	DataSourceID string
	MaxAnswerLen int
}

type CacheConfig struct {
	TTL         time.Duration
	FeedbackTTL time.Duration
}

type PipelineConfig struct {
	RawPrefix       string
	ProcessedPrefix string
	Concurrency     int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Port: 4700},
		ObjectStore: ObjectStoreConfig{
			Secure: true,
		},
		Extractor: ExtractorConfig{
			PollInterval: 2 * time.Second,
		},
		Answerer: AnswererConfig{
			MaxAnswerLen: 64 << 10,
		},
		Cache: CacheConfig{
			TTL:         24 * time.Hour,
			FeedbackTTL: 30 * 24 * time.Hour,
		},
		Pipeline: PipelineConfig{
			RawPrefix:       "raw/",
			ProcessedPrefix: "processed/",
			Concurrency:     4,
		},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".corpusqa"
	}
	return filepath.Join(home, ".corpusqa")
}

// Load reads configuration from a .env file (if present) and the process
// environment. Real environment variables win over .env values because
// godotenv never overrides variables already set.
func Load() (Config, error) {
	_ = godotenv.Load()
	return loadWith(os.Getenv)
}

func loadWith(getenv func(string) string) (Config, error) {
	cfg := defaults()

	setString(getenv, "CORPUSQA_S3_ENDPOINT", &cfg.ObjectStore.Endpoint)
	setString(getenv, "CORPUSQA_S3_REGION", &cfg.ObjectStore.Region)
	setString(getenv, "CORPUSQA_S3_ACCESS_KEY", &cfg.ObjectStore.AccessKey)
	setString(getenv, "CORPUSQA_S3_SECRET_KEY", &cfg.ObjectStore.SecretKey)
	setString(getenv, "CORPUSQA_BUCKET", &cfg.ObjectStore.Bucket)
	setString(getenv, "CORPUSQA_EXTRACTOR_URL", &cfg.Extractor.BaseURL)
	setString(getenv, "CORPUSQA_ANSWERER_URL", &cfg.Answerer.BaseURL)
	setString(getenv, "CORPUSQA_INDEX_ID", &cfg.Answerer.IndexID)
	setString(getenv, "CORPUSQA_DATASOURCE_ID", &cfg.Answerer.DataSourceID)
	setString(getenv, "CORPUSQA_RAW_PREFIX", &cfg.Pipeline.RawPrefix)
	setString(getenv, "CORPUSQA_PROCESSED_PREFIX", &cfg.Pipeline.ProcessedPrefix)
	setString(getenv, "CORPUSQA_DATA_DIR", &cfg.Storage.DataDir)
	setString(getenv, "CORPUSQA_API_TOKEN", &cfg.Server.Token)
	setString(getenv, "CORPUSQA_LOG_LEVEL", &cfg.Log.Level)

	if err := setBool(getenv, "CORPUSQA_S3_SECURE", &cfg.ObjectStore.Secure); err != nil {
		return Config{}, err
	}
	if err := setInt(getenv, "CORPUSQA_PORT", &cfg.Server.Port); err != nil {
		return Config{}, err
	}
	if err := setInt(getenv, "CORPUSQA_PIPELINE_CONCURRENCY", &cfg.Pipeline.Concurrency); err != nil {
		return Config{}, err
	}
	if err := setInt(getenv, "CORPUSQA_MAX_ANSWER_BYTES", &cfg.Answerer.MaxAnswerLen); err != nil {
		return Config{}, err
	}
	if err := setDuration(getenv, "CORPUSQA_CACHE_TTL", &cfg.Cache.TTL); err != nil {
		return Config{}, err
	}
	if err := setDuration(getenv, "CORPUSQA_FEEDBACK_TTL", &cfg.Cache.FeedbackTTL); err != nil {
		return Config{}, err
	}
	if err := setDuration(getenv, "CORPUSQA_POLL_INTERVAL", &cfg.Extractor.PollInterval); err != nil {
		return Config{}, err
	}

	required := []struct {
		env   string
		value string
	}{
		{"CORPUSQA_S3_ENDPOINT", cfg.ObjectStore.Endpoint},
		{"CORPUSQA_S3_ACCESS_KEY", cfg.ObjectStore.AccessKey},
		{"CORPUSQA_S3_SECRET_KEY", cfg.ObjectStore.SecretKey},
		{"CORPUSQA_BUCKET", cfg.ObjectStore.Bucket},
		{"CORPUSQA_EXTRACTOR_URL", cfg.Extractor.BaseURL},
		{"CORPUSQA_ANSWERER_URL", cfg.Answerer.BaseURL},
		{"CORPUSQA_INDEX_ID", cfg.Answerer.IndexID},
		{"CORPUSQA_DATASOURCE_ID", cfg.Answerer.DataSourceID},
	}
	var missing []string
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.env)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: set %s", strings.Join(missing, ", "))
	}

	if cfg.Extractor.PollInterval <= 0 {
		return Config{}, fmt.Errorf("CORPUSQA_POLL_INTERVAL must be positive, got %s", cfg.Extractor.PollInterval)
	}
	if cfg.Cache.TTL <= 0 {
		return Config{}, fmt.Errorf("CORPUSQA_CACHE_TTL must be positive, got %s", cfg.Cache.TTL)
	}
	if cfg.Pipeline.Concurrency <= 0 {
		return Config{}, fmt.Errorf("CORPUSQA_PIPELINE_CONCURRENCY must be positive, got %d", cfg.Pipeline.Concurrency)
	}

	return cfg, nil
}

func setString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func setBool(getenv func(string) string, key string, dst *bool) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = parsed
	return nil
}

func setInt(getenv func(string) string, key string, dst *int) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = parsed
	return nil
}

func setDuration(getenv func(string) string, key string, dst *time.Duration) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = parsed
	return nil
}
