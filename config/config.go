package config

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Provider holds the application configuration and allows for atomic updates.
// A single *Config is swapped in on reload; readers never see a half-updated
// struct because atomic.Value only ever holds complete snapshots.
type Provider struct {
	value atomic.Value // holds the current *Config
}

// NewProvider creates a new configuration provider with the initial config.
// It panics if the initial config is nil.
func NewProvider(c *Config) *Provider {
	if c == nil {
		panic("config: initial config cannot be nil")
	}
	p := &Provider{}
	p.value.Store(c)
	return p
}

// Get returns the current configuration snapshot. Safe for concurrent use.
func (p *Provider) Get() *Config {
	return p.value.Load().(*Config)
}

// Update atomically swaps the current configuration with the new one.
// The caller is responsible for validating newConfig before calling Update.
func (p *Provider) Update(newConfig *Config) {
	p.value.Store(newConfig)
}

// Duration wraps time.Duration so it can be read from TOML as a string
// like "5s" or "2m" instead of a raw integer of nanoseconds.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LogLevel wraps slog.Level for the same reason: readable TOML values
// ("debug", "info", "warn", "error") instead of raw integers.
type LogLevel struct {
	slog.Level
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	return l.Level.Unmarshal(text)
}

// Server holds the ingest HTTP server's listen and timeout settings.
type Server struct {
	Addr                    string
	ShutdownGracefulTimeout Duration
	ReadTimeout             Duration
	ReadHeaderTimeout       Duration
	WriteTimeout            Duration
	IdleTimeout             Duration
	ClientIpProxyHeader     string
}

// Worker holds the delivery worker's polling and retry schedule.
type Worker struct {
	// WorkerID identifies this process instance for the picked_at/worker_id
	// columns written on claim; WorkerVersion disambiguates code revisions of
	// the same WorkerID, so a rolling deploy never confuses an old and a new
	// binary's claims.
	WorkerID      string
	WorkerVersion string

	PollInterval      Duration
	MinimumRetryDelay Duration
	MaximumRetryDelay Duration

	// LeaseDuration bounds how long a claimed attempt is held before another
	// worker is allowed to reclaim it. It must comfortably exceed the HTTP
	// client adapter's dispatch timeout, or a worker still legitimately
	// dispatching an attempt would have it stolen out from under it.
	LeaseDuration Duration

	// MaxInFlight is validated (it must be at least 1) but the worker loop
	// does not read it: a worker process dispatches one attempt at a time.
	MaxInFlight int
}

// Cache configures the Ristretto-backed lookup caches fronting the ingest
// path: the application-secret cache and the principal-role cache are both
// built from this Level and TTL.
type Cache struct {
	Level string // "small", "medium", "large", or "very-large"
	TTL   Duration
}

// Backup configures continuous litestream replication of the SQLite file.
// An empty ReplicaPath disables backup entirely.
type Backup struct {
	ReplicaPath string
	ReplicaName string
}

// Reporter configures the "something broke" notification sink. An empty
// WebhookURL disables it and every Report call becomes a no-op.
type Reporter struct {
	WebhookURL string
	Timeout    Duration
}

// RequestLog configures structured request logging field truncation, mirrored
// from the teacher lineage's request-log middleware.
type RequestLog struct {
	Enabled bool
	Limits  RequestLimits
}

type RequestLimits struct {
	URL       int
	UserAgent int
	Referer   int
	RemoteIP  int
}

// BatchLog configures the optional DB-backed batched log sink.
type BatchLog struct {
	Enabled       bool
	ChanSize      int
	FlushSize     int
	FlushInterval Duration
	Level         LogLevel
}

type Log struct {
	Request RequestLog
	Batch   BatchLog
}

// Config is the full, flat configuration record for both the ingest service
// and the worker CLI. Not every field applies to every process: the worker
// only reads Database, Worker, Reporter, and MetricsAddr; the ingest service
// reads all of it.
type Config struct {
	// Database is the path to the shared SQLite file both processes open.
	Database string

	Server   Server
	Worker   Worker
	Cache    Cache
	Backup   Backup
	Reporter Reporter
	Log      Log

	// MetricsAddr is the address to serve /metrics on. Empty disables it.
	MetricsAddr string

	// JwtAuthSecret verifies bearer tokens presented to the ingest endpoint.
	JwtAuthSecret string
}

const (
	DefaultReadTimeout       = 2 * time.Second
	DefaultReadHeaderTimeout = 2 * time.Second
	DefaultWriteTimeout      = 3 * time.Second
	DefaultIdleTimeout       = 1 * time.Minute
	DefaultShutdownTimeout   = 15 * time.Second

	MinimumRetryDelayFloor = 5 * time.Second
	MaximumRetryDelayCeil  = 300 * time.Second

	// DefaultLeaseDuration must stay comfortably above httpadapter's
	// defaultTimeout so a worker mid-dispatch never loses its own claim.
	DefaultLeaseDuration = 60 * time.Second
)
