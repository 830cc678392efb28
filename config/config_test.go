package config

import (
	"testing"
	"time"
)

func TestProvider_GetReturnsStoredConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Database = "first.db"
	p := NewProvider(cfg)

	if got := p.Get().Database; got != "first.db" {
		t.Fatalf("expected first.db, got %s", got)
	}
}

func TestProvider_UpdateSwapsAtomically(t *testing.T) {
	p := NewProvider(NewDefaultConfig())

	updated := NewDefaultConfig()
	updated.Database = "second.db"
	p.Update(updated)

	if got := p.Get().Database; got != "second.db" {
		t.Fatalf("expected second.db after update, got %s", got)
	}
}

func TestNewProvider_PanicsOnNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected NewProvider(nil) to panic")
		}
	}()
	NewProvider(nil)
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("5s")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Duration != 5*time.Second {
		t.Fatalf("expected 5s, got %v", d.Duration)
	}
}

func TestDuration_UnmarshalTextRejectsInvalid(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("not-a-duration")); err == nil {
		t.Fatalf("expected an error for an invalid duration string")
	}
}

func TestDuration_MarshalText(t *testing.T) {
	d := Duration{Duration: 90 * time.Second}
	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(text) != "1m30s" {
		t.Fatalf("expected 1m30s, got %s", string(text))
	}
}

func TestLogLevel_UnmarshalText(t *testing.T) {
	var l LogLevel
	if err := l.UnmarshalText([]byte("warn")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewDefaultConfig_PassesValidation(t *testing.T) {
	if err := Validate(NewDefaultConfig()); err != nil {
		t.Fatalf("expected defaults to validate cleanly, got %v", err)
	}
}
