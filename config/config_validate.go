package config

import (
	"fmt"
	"net"
	"strconv"
)

// Validate checks the entire configuration for correctness, one section
// after another, and returns the first error it finds wrapped with the name
// of the failing section; later sections are not checked.
func Validate(cfg *Config) error {
	if err := validateDatabase(cfg); err != nil {
		return fmt.Errorf("database config validation failed: %w", err)
	}
	if err := validateServer(&cfg.Server); err != nil {
		return fmt.Errorf("server config validation failed: %w", err)
	}
	if err := validateWorker(&cfg.Worker); err != nil {
		return fmt.Errorf("worker config validation failed: %w", err)
	}
	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache config validation failed: %w", err)
	}
	if err := validateLoggerBatch(&cfg.Log.Batch); err != nil {
		return fmt.Errorf("log.batch config validation failed: %w", err)
	}
	if err := validateRequestLog(&cfg.Log.Request); err != nil {
		return fmt.Errorf("log.request config validation failed: %w", err)
	}
	return nil
}

func validateDatabase(cfg *Config) error {
	if cfg.Database == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	return nil
}

func validateServer(server *Server) error {
	if server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	_, port, err := net.SplitHostPort(server.Addr)
	if err != nil {
		return fmt.Errorf("invalid server address format %q: %w", server.Addr, err)
	}
	return validateServerPort(port)
}

func validateServerPort(portStr string) error {
	if portStr == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	portNum, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port %q: must be a number: %w", portStr, err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", portNum)
	}
	return nil
}

func validateWorker(w *Worker) error {
	if w.WorkerID == "" {
		return fmt.Errorf("worker_id cannot be empty")
	}
	if w.WorkerVersion == "" {
		return fmt.Errorf("worker_version cannot be empty")
	}
	if w.PollInterval.Duration <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if w.MinimumRetryDelay.Duration <= 0 {
		return fmt.Errorf("minimum_retry_delay must be positive")
	}
	if w.MaximumRetryDelay.Duration < w.MinimumRetryDelay.Duration {
		return fmt.Errorf("maximum_retry_delay must be >= minimum_retry_delay")
	}
	if w.LeaseDuration.Duration <= 0 {
		return fmt.Errorf("lease_duration must be positive")
	}
	if w.MaxInFlight < 1 {
		return fmt.Errorf("max_in_flight must be >= 1")
	}
	return nil
}

func validateCache(c *Cache) error {
	allowedLevels := map[string]bool{"small": true, "medium": true, "large": true, "very-large": true}
	if !allowedLevels[c.Level] {
		return fmt.Errorf("invalid cache level %q: must be one of small, medium, large, very-large", c.Level)
	}
	return nil
}

func validateLoggerBatch(b *BatchLog) error {
	if !b.Enabled {
		return nil
	}
	if b.ChanSize < 1 {
		return fmt.Errorf("chan_size must be >= 1")
	}
	if b.FlushSize < 1 {
		return fmt.Errorf("flush_size must be >= 1")
	}
	if b.FlushInterval.Duration <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	return nil
}

func validateRequestLog(r *RequestLog) error {
	if !r.Enabled {
		return nil
	}
	if r.Limits.URL < 64 {
		return fmt.Errorf("log.request.limits.url must be at least 64")
	}
	if r.Limits.UserAgent < 32 {
		return fmt.Errorf("log.request.limits.user_agent must be at least 32")
	}
	if r.Limits.Referer < 64 {
		return fmt.Errorf("log.request.limits.referer must be at least 64")
	}
	if r.Limits.RemoteIP < 15 {
		return fmt.Errorf("log.request.limits.remote_ip must be at least 15")
	}
	return nil
}
