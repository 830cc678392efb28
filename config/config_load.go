package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

// Load reads the ingest service's configuration from a TOML file at path,
// layering it on top of NewDefaultConfig so an operator only needs to
// specify the fields that differ from the defaults.
func Load(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("config: failed to decode %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWorkerEnv assembles the worker CLI's configuration from environment
// variables, per the recognized set: sentry_dsn, database_url, worker_id,
// worker_version, each read from its upper-cased name (SENTRY_DSN,
// DATABASE_URL, WORKER_ID, WORKER_VERSION); other spellings are not read.
func LoadWorkerEnv() (*Config, error) {
	cfg := NewDefaultConfig()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("config: database_url is required")
	}
	cfg.Database = databaseURL

	cfg.Reporter.WebhookURL = os.Getenv("SENTRY_DSN")

	if workerID := os.Getenv("WORKER_ID"); workerID != "" {
		cfg.Worker.WorkerID = workerID
	} else {
		cfg.Worker.WorkerID = uuid.NewString()
	}

	if workerVersion := os.Getenv("WORKER_VERSION"); workerVersion != "" {
		cfg.Worker.WorkerVersion = workerVersion
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}
