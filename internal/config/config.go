// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Audit log database (libsql)
	AuditDatabaseURL string

	// MasterSecret seeds every HKDF-derived key in the system (photo-proxy
	// signing key, debug-capture encryption key). Treat it like a password.
	MasterSecret string

	// Redis (L2 tier of the kv store)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Provider Gateway (Places-style upstream)
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	// Language model backing the pipeline stages
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	LLMTimeout   time.Duration
	LLMAPIFormat string // openai, anthropic, ollama

	// CORS
	CORSOrigins []string

	// Object Storage (Tigris/S3-compatible) for debug-capture archival
	StorageEnabled   bool
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string

	// Webhook signing (svix)
	WebhookSigningSecret string

	// Job store TTLs
	JobTTL   time.Duration
	CacheTTL time.Duration

	// Rate limiting
	SessionRequestsPerMinute int
	IPRequestsPerMinute      int

	// Pipeline
	PipelineStageTimeout time.Duration
	HeartbeatInterval    time.Duration

	// Idle shutdown (scale-to-zero)
	IdleTimeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getEnvInt("PORT", 8080),
		BaseURL: getEnv("BASE_URL", "http://localhost:8080"),

		AuditDatabaseURL: getEnv("AUDIT_DATABASE_URL", "file:audit.db?_journal=WAL&_timeout=5000"),

		MasterSecret: getEnv("MASTER_SECRET", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "https://places.googleapis.com"),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", ""),
		ProviderTimeout: getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),

		LLMBaseURL:   getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:    getEnv("LLM_API_KEY", ""),
		LLMModel:     getEnv("LLM_MODEL", ""),
		LLMTimeout:   getEnvDuration("LLM_TIMEOUT", 20*time.Second),
		LLMAPIFormat: getEnv("LLM_API_FORMAT", "openai"),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),

		WebhookSigningSecret: getEnv("WEBHOOK_SIGNING_SECRET", ""),

		JobTTL:   getEnvDuration("JOB_TTL", 24*time.Hour),
		CacheTTL: getEnvDuration("CACHE_TTL", 15*time.Minute),

		SessionRequestsPerMinute: getEnvInt("SESSION_REQUESTS_PER_MINUTE", 30),
		IPRequestsPerMinute:      getEnvInt("IP_REQUESTS_PER_MINUTE", 60),

		PipelineStageTimeout: getEnvDuration("PIPELINE_STAGE_TIMEOUT", 8*time.Second),
		HeartbeatInterval:    getEnvDuration("HEARTBEAT_INTERVAL", 5*time.Second),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if cfg.MasterSecret == "" {
		return nil, fmt.Errorf("MASTER_SECRET is required")
	}
	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required")
	}

	return cfg, nil
}

// PhotoProxyKey derives the 32-byte HMAC key used to sign photo-proxy
// reference tokens so the upstream provider key never reaches the client.
func (c *Config) PhotoProxyKey() []byte {
	return derive(c.MasterSecret, "photo-proxy-hmac-key-v1", "hmac-sha256-signing")
}

// DebugCaptureKey derives the 32-byte AES-256 key used to encrypt archived
// debug-capture payloads before they're written to object storage.
func (c *Config) DebugCaptureKey() []byte {
	return derive(c.MasterSecret, "debug-capture-encryption-key-v1", "aes-256-gcm-encryption")
}

// derive uses HKDF-SHA256 to turn the master secret into a purpose-bound
// 32-byte key. Salt and info bind the derived key to its single use so the
// same secret never produces the same key for two purposes.
func derive(secret, salt, info string) []byte {
	r := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(info))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		panic("hkdf: failed to derive key: " + err.Error())
	}
	return key
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}
