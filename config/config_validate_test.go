package config

import "testing"

func TestValidate_RejectsEmptyDatabase(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Database = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for empty database path")
	}
}

func TestValidate_RejectsBadServerAddr(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.Addr = "not-an-address"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for a malformed server address")
	}
}

func TestValidate_RejectsOutOfRangePort(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Server.Addr = ":99999"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an out-of-range port")
	}
}

func TestValidate_RejectsMaxRetryDelayBelowMinimum(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Worker.MinimumRetryDelay.Duration = 10
	cfg.Worker.MaximumRetryDelay.Duration = 5
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error when maximum_retry_delay < minimum_retry_delay")
	}
}

func TestValidate_RejectsZeroMaxInFlight(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Worker.MaxInFlight = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for max_in_flight < 1")
	}
}

func TestValidate_RejectsUnknownCacheLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Cache.Level = "huge"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for an unrecognized cache level")
	}
}

func TestValidate_SkipsBatchLogFieldsWhenDisabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Log.Batch.Enabled = false
	cfg.Log.Batch.ChanSize = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected disabled batch log to skip its field checks, got %v", err)
	}
}

func TestValidate_ChecksBatchLogFieldsWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Log.Batch.Enabled = true
	cfg.Log.Batch.ChanSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for chan_size < 1 when batch logging is enabled")
	}
}

func TestValidate_ChecksRequestLogLimitsWhenEnabled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Log.Request.Enabled = true
	cfg.Log.Request.Limits.URL = 10
	if err := Validate(cfg); err == nil {
		t.Fatal("expected an error for log.request.limits.url below the minimum")
	}
}
