package config

import (
	"log/slog"
	"time"
)

// NewDefaultConfig creates a new Config with sensible defaults for local
// development. Production deployments override Database, JwtAuthSecret,
// and Reporter.WebhookURL at minimum.
func NewDefaultConfig() *Config {
	return &Config{
		Database: "hookrelay.db",
		Server: Server{
			Addr:                    ":8080",
			ShutdownGracefulTimeout: Duration{Duration: DefaultShutdownTimeout},
			ReadTimeout:             Duration{Duration: DefaultReadTimeout},
			ReadHeaderTimeout:       Duration{Duration: DefaultReadHeaderTimeout},
			WriteTimeout:            Duration{Duration: DefaultWriteTimeout},
			IdleTimeout:             Duration{Duration: DefaultIdleTimeout},
			ClientIpProxyHeader:     "",
		},
		Worker: Worker{
			WorkerID:          "worker-1",
			WorkerVersion:     "dev",
			PollInterval:      Duration{Duration: 1 * time.Second},
			MinimumRetryDelay: Duration{Duration: MinimumRetryDelayFloor},
			MaximumRetryDelay: Duration{Duration: MaximumRetryDelayCeil},
			LeaseDuration:     Duration{Duration: DefaultLeaseDuration},
			MaxInFlight:       8,
		},
		Cache: Cache{
			Level: "small",
			TTL:   Duration{Duration: 30 * time.Second},
		},
		Backup: Backup{
			ReplicaPath: "",
			ReplicaName: "main",
		},
		Reporter: Reporter{
			WebhookURL: "",
			Timeout:    Duration{Duration: 10 * time.Second},
		},
		Log: Log{
			Request: RequestLog{
				Enabled: true,
				Limits: RequestLimits{
					URL:       512,
					UserAgent: 256,
					Referer:   512,
					RemoteIP:  64,
				},
			},
			Batch: BatchLog{
				Enabled:       false,
				ChanSize:      1000,
				FlushSize:     100,
				FlushInterval: Duration{Duration: 5 * time.Second},
				Level:         LogLevel{Level: slog.LevelInfo},
			},
		},
		MetricsAddr:   "",
		JwtAuthSecret: "dev_only_secret_change_me_32_bytes_x",
	}
}
