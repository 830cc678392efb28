package config

import (
	"fmt"
	"log/slog"
)

// Reload returns a function that, when called, re-reads the configuration
// file at path, validates it, and swaps it into provider. Wiring this to
// SIGHUP lets an operator change cache sizing, timeouts, or the reporter
// webhook without restarting the ingest service.
func Reload(path string, provider *Provider, logger *slog.Logger) func() error {
	return func() error {
		logger.Debug("reload: reading configuration file", "path", path)
		newCfg, err := Load(path)
		if err != nil {
			logger.Error("reload: failed to load configuration", "path", path, "error", err)
			return fmt.Errorf("failed to reload configuration from %s: %w", path, err)
		}

		provider.Update(newCfg)
		logger.Info("reload: configuration reloaded and swapped in")
		return nil
	}
}
