package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config collects every knob the server needs. It is built once in main and
// passed down explicitly; nothing in the tree reads the environment after boot.
type Config struct {
	Port    string
	GinMode string

	PostgresURI string
	RedisAddr   string
	MongoURI    string
	MongoDB     string

	GCSBucket string
	UploadDir string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	AnswererURL    string
	AnswererAPIKey string

	SignedURLTTL time.Duration

	IngestStream  string
	IngestGroup   string
	IngestWorkers int
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:    getEnv("PORT", "8080"),
		GinMode: getEnv("GIN_MODE", "release"),

		PostgresURI: os.Getenv("POSTGRES_URI"),
		RedisAddr:   getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		MongoURI:    os.Getenv("MONGO_URI"),
		MongoDB:     getEnv("MONGO_DB", "docuchat"),

		GCSBucket: os.Getenv("GCS_BUCKET"),
		UploadDir: getEnv("UPLOAD_DIR", os.TempDir()),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   os.Getenv("JWT_ISSUER"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),

		AnswererURL:    os.Getenv("ANSWERER_URL"),
		AnswererAPIKey: os.Getenv("ANSWERER_API_KEY"),

		SignedURLTTL: time.Duration(getEnvAsInt("SIGNED_URL_TTL_SECONDS", 600)) * time.Second,

		IngestStream:  getEnv("INGEST_STREAM", "documents:ingest"),
		IngestGroup:   getEnv("INGEST_GROUP", "ingest-workers"),
		IngestWorkers: getEnvAsInt("INGEST_WORKERS", 3),
	}

	if cfg.PostgresURI == "" {
		return nil, fmt.Errorf("POSTGRES_URI environment variable is not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is not set")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
