package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestReload_SwapsValidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("Database = \"reload.db\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	provider := NewProvider(NewDefaultConfig())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reload := Reload(path, provider, logger)
	if err := reload(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := provider.Get().Database; got != "reload.db" {
		t.Errorf("expected the provider to reflect the reloaded database path, got %q", got)
	}
}

func TestReload_KeepsPreviousConfigOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("Database = \"\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	original := NewDefaultConfig()
	provider := NewProvider(original)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reload := Reload(path, provider, logger)
	if err := reload(); err == nil {
		t.Fatal("expected an error for an invalid reloaded configuration")
	}

	if got := provider.Get().Database; got != original.Database {
		t.Errorf("expected the previous configuration to be kept, got database %q", got)
	}
}

func TestReload_MissingFile(t *testing.T) {
	provider := NewProvider(NewDefaultConfig())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reload := Reload(filepath.Join(t.TempDir(), "missing.toml"), provider, logger)
	if err := reload(); err == nil {
		t.Fatal("expected an error when the configuration file does not exist")
	}
}
