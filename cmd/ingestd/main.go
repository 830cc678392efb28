// Command ingestd runs the HTTP ingest service: it accepts POST /events,
// authorizes and validates the event, and commits it (plus one pending
// request_attempt per subscription) to the shared store.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/caasmo/hookrelay/backup"
	"github.com/caasmo/hookrelay/cache"
	"github.com/caasmo/hookrelay/cache/ristretto"
	"github.com/caasmo/hookrelay/config"
	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/db/zombiezen"
	"github.com/caasmo/hookrelay/ingest"
	hrlog "github.com/caasmo/hookrelay/log"
	"github.com/caasmo/hookrelay/reporter"
	"github.com/caasmo/hookrelay/router"
	"github.com/caasmo/hookrelay/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "hookrelay.toml", "path to the TOML configuration file")
	flag.Parse()

	opLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		opLogger.Error("ingestd: failed to load configuration", "error", err)
		os.Exit(1)
	}
	provider := config.NewProvider(cfg)

	store, err := zombiezen.New(cfg.Database)
	if err != nil {
		opLogger.Error("ingestd: failed to open store", "error", err)
		os.Exit(1)
	}

	rep := newReporter(cfg, opLogger)

	secretCache, roleCache, err := newCaches(cfg)
	if err != nil {
		opLogger.Error("ingestd: failed to initialize caches", "error", err)
		os.Exit(1)
	}

	service := ingest.NewService(store, secretCache, cfg.Cache.TTL.Duration, rep)
	authorizer := ingest.NewAuthorizer(store, roleCache, cfg.Cache.TTL.Duration)
	handler := ingest.NewHandler(service, authorizer, []byte(cfg.JwtAuthSecret), db.RoleEditor, opLogger)

	rtr := router.New()
	handler.Register(rtr)

	registry := prometheus.NewRegistry()
	registerMetricsHandler(cfg, registry, opLogger)

	srv := server.NewServer(provider, rtr, opLogger, config.Reload(*configPath, provider, opLogger))

	if cfg.Backup.ReplicaPath != "" {
		ls, err := backup.NewLitestream(provider, opLogger)
		if err != nil {
			opLogger.Error("ingestd: failed to initialize backup", "error", err)
			store.Close()
			os.Exit(1)
		}
		srv.AddDaemon(ls)
	}

	if cfg.Log.Batch.Enabled {
		logDaemon, err := hrlog.New(provider, opLogger, store)
		if err != nil {
			opLogger.Error("ingestd: failed to initialize log daemon", "error", err)
			store.Close()
			os.Exit(1)
		}
		srv.AddDaemon(logDaemon)

		recordChan, daemonCtx := logDaemon.Chan()
		batchHandler := hrlog.NewBatchHandler(provider, recordChan, daemonCtx)
		opLogger = slog.New(batchHandler)
	}

	srv.Run()
}

func newReporter(cfg *config.Config, logger *slog.Logger) reporter.Reporter {
	if cfg.Reporter.WebhookURL == "" {
		return reporter.Noop{}
	}
	return reporter.NewDiscord(cfg.Reporter.WebhookURL, cfg.Reporter.Timeout.Duration, logger)
}

func newCaches(cfg *config.Config) (cache.Cache[string, db.ApplicationSecret], cache.Cache[string, db.Role], error) {
	secretCache, err := ristretto.New[db.ApplicationSecret](cfg.Cache.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("secret cache: %w", err)
	}
	roleCache, err := ristretto.New[db.Role](cfg.Cache.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("role cache: %w", err)
	}
	return secretCache, roleCache, nil
}

func registerMetricsHandler(cfg *config.Config, registry *prometheus.Registry, logger *slog.Logger) {
	if cfg.MetricsAddr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		logger.Info("ingestd: starting metrics server", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("ingestd: metrics server stopped", "error", err)
		}
	}()
}
