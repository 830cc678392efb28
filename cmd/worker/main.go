// Command worker runs the delivery worker loop: claim the oldest eligible
// request_attempt, dispatch it through the HTTP client adapter, record the
// outcome, and reschedule on failure.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/caasmo/hookrelay/config"
	"github.com/caasmo/hookrelay/db/zombiezen"
	"github.com/caasmo/hookrelay/reporter"
	"github.com/caasmo/hookrelay/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	opLogger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.LoadWorkerEnv()
	if err != nil {
		opLogger.Error("worker: failed to load configuration", "error", err)
		os.Exit(1)
	}
	provider := config.NewProvider(cfg)

	store, err := zombiezen.New(cfg.Database)
	if err != nil {
		opLogger.Error("worker: failed to open store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var rep reporter.Reporter = reporter.Noop{}
	if cfg.Reporter.WebhookURL != "" {
		rep = reporter.NewDiscord(cfg.Reporter.WebhookURL, cfg.Reporter.Timeout.Duration, opLogger)
	}

	registry := prometheus.NewRegistry()
	metrics := worker.NewMetrics()
	metrics.Register(registry)

	hotlist := worker.NewHotlist()
	hotlist.Register(registry)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			opLogger.Info("worker: starting metrics server", "addr", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				opLogger.Error("worker: metrics server stopped", "error", err)
			}
		}()
	}

	w := worker.New(provider, store, rep, opLogger, metrics, hotlist)
	if err := w.Start(); err != nil {
		opLogger.Error("worker: failed to start", "error", err)
		os.Exit(1)
	}

	opLogger.Info("worker: started", "worker_id", cfg.Worker.WorkerID, "worker_version", cfg.Worker.WorkerVersion)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	opLogger.Info("worker: received termination signal, shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := w.Stop(shutdownCtx); err != nil {
		opLogger.Error("worker: shutdown error", "error", err)
		os.Exit(1)
	}
	opLogger.Info("worker: stopped gracefully")
}
