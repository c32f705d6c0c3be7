package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Local store
	DataPath     string // bbolt database file
	StorageQuota int64  // bytes; the old local-storage budget

	// External services
	ExternalStoreURL string // unauthenticated HTTP store (sync + backups)
	EntityAPIURL     string // backend-as-a-service entity CRUD
	EntityAPIKey     string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Background tasks
	SyncInterval    time.Duration
	BackupInterval  time.Duration
	BackupRetention time.Duration
	FileMaxAgeDays  int // 0 disables the file cleanup task

	// Observability
	OTLPEndpoint string

	// JWT / Auth
	JWTSecret     string
	JWTAccessTTL  time.Duration
	AdminPassword string // initial password for the admin sentinel
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataPath:     getEnv("DATA_PATH", "data/gestor.db"),
		StorageQuota: int64(getEnvInt("STORAGE_QUOTA_BYTES", 5*1024*1024)),

		ExternalStoreURL: getEnv("EXTERNAL_STORE_URL", "http://localhost:8087"),
		EntityAPIURL:     getEnv("ENTITY_API_URL", "http://localhost:8088"),
		EntityAPIKey:     getEnv("ENTITY_API_KEY", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 10),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		SyncInterval:    getEnvDuration("SYNC_INTERVAL", 5*time.Minute),
		BackupInterval:  getEnvDuration("BACKUP_INTERVAL", 24*time.Hour),
		BackupRetention: getEnvDuration("BACKUP_RETENTION", 7*24*time.Hour),
		FileMaxAgeDays:  getEnvInt("FILE_MAX_AGE_DAYS", 0),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		JWTSecret:     getEnv("JWT_SECRET", "gestor-default-dev-secret-change-me"),
		JWTAccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 8*time.Hour),
		AdminPassword: getEnv("ADMIN_PASSWORD", "admin123"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
