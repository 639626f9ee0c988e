package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

type StoreDriver string

const (
	StorePostgres StoreDriver = "postgres"
	StoreSQLite   StoreDriver = "sqlite"
	StoreMemory   StoreDriver = "memory"
)

type Config struct {
	HTTPAddr        string
	Store           StoreDriver
	DatabaseURL     string
	SQLitePath      string
	NATSURL         string
	BlobDriver      string
	BlobS3Bucket    string
	BlobS3Region    string
	BlobS3Endpoint  string
	BlobS3PathStyle bool
	OTLPEndpoint    string
	LogLevel        zerolog.Level
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file, then LABFLOW_* environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		HTTPAddr:        getEnv("LABFLOW_HTTP_ADDR", ":8080"),
		Store:           StoreDriver(strings.ToLower(getEnv("LABFLOW_STORE", string(StoreMemory)))),
		DatabaseURL:     getEnv("LABFLOW_DATABASE_URL", ""),
		SQLitePath:      getEnv("LABFLOW_SQLITE_PATH", "labflow.db"),
		NATSURL:         getEnv("LABFLOW_NATS_URL", ""),
		BlobDriver:      getEnv("LABFLOW_BLOB_DRIVER", "memory"),
		BlobS3Bucket:    getEnv("LABFLOW_BLOB_S3_BUCKET", ""),
		BlobS3Region:    getEnv("LABFLOW_BLOB_S3_REGION", ""),
		BlobS3Endpoint:  getEnv("LABFLOW_BLOB_S3_ENDPOINT", ""),
		BlobS3PathStyle: getEnvBool("LABFLOW_BLOB_S3_PATH_STYLE", false),
		OTLPEndpoint:    getEnv("LABFLOW_OTLP_ENDPOINT", ""),
	}

	level, err := zerolog.ParseLevel(getEnv("LABFLOW_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("parse LABFLOW_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	timeout, err := time.ParseDuration(getEnv("LABFLOW_SHUTDOWN_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("parse LABFLOW_SHUTDOWN_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout = timeout

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (cfg *Config) validate() error {
	switch cfg.Store {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("LABFLOW_DATABASE_URL is required for the postgres store")
		}
	case StoreSQLite, StoreMemory:
	default:
		return fmt.Errorf("unknown LABFLOW_STORE %q", cfg.Store)
	}

	if strings.EqualFold(cfg.BlobDriver, "s3") && cfg.BlobS3Bucket == "" {
		return fmt.Errorf("LABFLOW_BLOB_S3_BUCKET is required for the s3 blob driver")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}

	return parsed
}
