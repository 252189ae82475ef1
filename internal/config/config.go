package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string        `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT" default:"json"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Delphi Epidata upstream.
	DelphiBaseURL string        `envconfig:"DELPHI_BASE_URL" default:"https://api.delphi.cmu.edu/epidata/fluview/"`
	DelphiAPIKey  string        `envconfig:"DELPHI_API_KEY"`
	DelphiTimeout time.Duration `envconfig:"DELPHI_TIMEOUT" default:"30s"`

	// Observation storage.
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data/disease.db"`
	PostgresDSN   string `envconfig:"POSTGRES_DSN"`

	// Optional Kafka publishing of upserted observations.
	KafkaEnabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"fluview-observations"`

	// Optional CSV archive of each successful run.
	ArchiveDriver      string `envconfig:"ARCHIVE_DRIVER"`
	ArchiveFSRoot      string `envconfig:"ARCHIVE_FS_ROOT" default:"archivedata"`
	ArchiveS3Bucket    string `envconfig:"ARCHIVE_S3_BUCKET"`
	ArchiveS3Region    string `envconfig:"ARCHIVE_S3_REGION"`
	ArchiveS3Endpoint  string `envconfig:"ARCHIVE_S3_ENDPOINT"`
	ArchiveS3PathStyle bool   `envconfig:"ARCHIVE_S3_PATH_STYLE" default:"false"`
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is consulted first;
// variables already present in the environment win over the file.
func Load() (*Config, error) {
	// Best effort: running without a .env file is the normal production case.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.ShutdownTimeout <= 0 {
		return nil, errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	if cfg.DelphiTimeout <= 0 {
		return nil, errors.New("DELPHI_TIMEOUT must be positive")
	}
	if cfg.DelphiBaseURL == "" {
		return nil, errors.New("DELPHI_BASE_URL is required")
	}

	switch cfg.StorageDriver {
	case "sqlite", "postgres", "memory":
	default:
		return nil, fmt.Errorf("STORAGE_DRIVER %q is not one of sqlite, postgres, memory", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "sqlite" && cfg.SQLitePath == "" {
		return nil, errors.New("STORAGE_DRIVER is sqlite but SQLITE_PATH is empty")
	}
	if cfg.StorageDriver == "postgres" && cfg.PostgresDSN == "" {
		return nil, errors.New("STORAGE_DRIVER is postgres but POSTGRES_DSN is not set")
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
	}

	switch cfg.ArchiveDriver {
	case "", "fs", "s3", "memory":
	default:
		return nil, fmt.Errorf("ARCHIVE_DRIVER %q is not one of fs, s3, memory", cfg.ArchiveDriver)
	}
	if cfg.ArchiveDriver == "s3" && cfg.ArchiveS3Bucket == "" {
		return nil, errors.New("ARCHIVE_DRIVER is s3 but ARCHIVE_S3_BUCKET is not set")
	}
	if cfg.ArchiveDriver == "fs" && cfg.ArchiveFSRoot == "" {
		return nil, errors.New("ARCHIVE_DRIVER is fs but ARCHIVE_FS_ROOT is empty")
	}

	return &cfg, nil
}

// ArchiveEnabled reports whether run snapshots should be written to blob
// storage after successful runs.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveDriver != ""
}
