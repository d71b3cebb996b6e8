package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"engine/internal/domain"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// Blob storage. Backend is "filesystem" or "minio".
	StorageBackend string
	StoragePath    string
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	// Generation provider.
	ProviderAPIKey  string
	ProviderBaseURL string
	ProviderModel   string

	Worker WorkerConfig
}

// WorkerConfig tunes the executor process. Values come from the environment
// and may be overridden by an optional YAML file named in
// ENGINE_WORKER_CONFIG, which is also where per-type credit costs live.
type WorkerConfig struct {
	Concurrency  int
	PollInterval time.Duration
	ReaperEvery  string
	ReaperMaxAge time.Duration
	Costs        map[domain.JobType]int64
}

// workerOverlay mirrors WorkerConfig in the YAML file; durations are written
// in time.ParseDuration notation ("500ms", "45m").
type workerOverlay struct {
	Concurrency  int                      `yaml:"concurrency"`
	PollInterval string                   `yaml:"poll_interval"`
	ReaperEvery  string                   `yaml:"reaper_every"`
	ReaperMaxAge string                   `yaml:"reaper_max_age"`
	Costs        map[domain.JobType]int64 `yaml:"costs"`
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		StorageBackend:   getEnv("STORAGE_BACKEND", "filesystem"),
		StoragePath:      getEnv("STORAGE_PATH", "./storage"),
		MinIOEndpoint:    os.Getenv("MINIO_ENDPOINT"),
		MinIOAccessKey:   os.Getenv("MINIO_ACCESS_KEY"),
		MinIOSecretKey:   os.Getenv("MINIO_SECRET_KEY"),
		MinIOBucket:      getEnv("MINIO_BUCKET", "engine-media"),
		MinIOUseSSL:      getEnvBool("MINIO_USE_SSL", false),
		ProviderAPIKey:   os.Getenv("PROVIDER_API_KEY"),
		ProviderBaseURL:  getEnv("PROVIDER_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ProviderModel:    getEnv("PROVIDER_MODEL", "gemini-2.5-flash"),
		Worker: WorkerConfig{
			Concurrency:  getEnvInt("ENGINE_WORKER_CONCURRENCY", 5),
			PollInterval: time.Second * time.Duration(getEnvInt("ENGINE_POLL_INTERVAL_SECONDS", 2)),
			ReaperEvery:  getEnv("ENGINE_REAPER_EVERY", "@every 1m"),
			ReaperMaxAge: time.Minute * time.Duration(getEnvInt("ENGINE_REAPER_MAX_AGE_MINUTES", 30)),
			Costs:        defaultCosts(),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.StorageBackend == "minio" && cfg.MinIOEndpoint == "" {
		return nil, fmt.Errorf("MINIO_ENDPOINT is required when STORAGE_BACKEND=minio")
	}

	if path := os.Getenv("ENGINE_WORKER_CONFIG"); path != "" {
		if err := cfg.Worker.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if cfg.Worker.Concurrency <= 0 {
		cfg.Worker.Concurrency = 5
	}
	if cfg.Worker.PollInterval <= 0 {
		cfg.Worker.PollInterval = 2 * time.Second
	}

	return cfg, nil
}

func defaultCosts() map[domain.JobType]int64 {
	return map[domain.JobType]int64{
		domain.JobTypeImageGeneration: 8,
		domain.JobTypeVideoGeneration: 20,
		domain.JobTypeAudioGeneration: 4,
		domain.JobTypeExport:          0,
		domain.JobTypeExportBundle:    0,
	}
}

func (w *WorkerConfig) mergeFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read worker config: %w", err)
	}
	var overlay workerOverlay
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("parse worker config: %w", err)
	}
	if overlay.Concurrency > 0 {
		w.Concurrency = overlay.Concurrency
	}
	if overlay.PollInterval != "" {
		d, err := time.ParseDuration(overlay.PollInterval)
		if err != nil {
			return fmt.Errorf("worker config: poll_interval: %w", err)
		}
		w.PollInterval = d
	}
	if overlay.ReaperEvery != "" {
		w.ReaperEvery = overlay.ReaperEvery
	}
	if overlay.ReaperMaxAge != "" {
		d, err := time.ParseDuration(overlay.ReaperMaxAge)
		if err != nil {
			return fmt.Errorf("worker config: reaper_max_age: %w", err)
		}
		w.ReaperMaxAge = d
	}
	for t, c := range overlay.Costs {
		if !domain.ValidJobType(t) {
			return fmt.Errorf("worker config: unknown job type %q", t)
		}
		w.Costs[t] = c
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
