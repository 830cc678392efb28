// Package worker implements the delivery worker loop (W): claim the oldest
// eligible request_attempt, dispatch it through the HTTP client adapter,
// record the outcome, and either terminate the attempt or schedule a retry.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/caasmo/hookrelay/config"
	"github.com/caasmo/hookrelay/db"
	"github.com/caasmo/hookrelay/httpadapter"
	"github.com/caasmo/hookrelay/reporter"
)

// Worker runs one poll loop per process, identified by (worker_id,
// worker_version). It implements the server.Daemon contract so it can be
// managed by the same start/stop lifecycle as the ambient daemons.
type Worker struct {
	configProvider *config.Provider
	store          db.Db
	adapter        *httpadapter.Adapter
	reporter       reporter.Reporter
	logger         *slog.Logger
	metrics        *Metrics
	hotlist        *Hotlist

	cancel       context.CancelFunc
	shutdownDone chan struct{}
}

func New(configProvider *config.Provider, store db.Db, rep reporter.Reporter, logger *slog.Logger, metrics *Metrics, hotlist *Hotlist) *Worker {
	return &Worker{
		configProvider: configProvider,
		store:          store,
		adapter:        httpadapter.New(),
		reporter:       rep,
		logger:         logger,
		metrics:        metrics,
		hotlist:        hotlist,
		shutdownDone:   make(chan struct{}),
	}
}

func (w *Worker) Name() string { return "DeliveryWorker" }

func (w *Worker) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx)
	return nil
}

func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	select {
	case <-w.shutdownDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.shutdownDone)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker: shutdown signal received, exiting loop")
			return
		default:
		}

		cfg := w.configProvider.Get()
		claimed, err := w.store.ClaimNextAttempt(ctx, cfg.Worker.WorkerID, cfg.Worker.WorkerVersion, cfg.Worker.LeaseDuration.Duration)
		if errors.Is(err, db.ErrNoRowsClaimed) {
			w.sleep(ctx, cfg.Worker.PollInterval.Duration)
			continue
		}
		if err != nil {
			w.logger.Error("worker: claim failed", "error", err)
			w.reporter.Report(ctx, err, map[string]any{"stage": "claim"})
			w.sleep(ctx, cfg.Worker.PollInterval.Duration)
			continue
		}

		w.metrics.AttemptsClaimed.Inc()
		w.processAttempt(ctx, cfg, claimed)
	}
}

// dispatchTimeout bounds the HTTP round-trip so it always finishes well
// inside the claim's lease, leaving headroom to report the result back
// before another worker could legitimately reclaim the row.
const dispatchTimeout = 30 * time.Second

func (w *Worker) processAttempt(ctx context.Context, cfg *config.Config, claimed *db.ClaimedAttempt) {
	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()

	resp := w.adapter.Dispatch(dispatchCtx, claimed.Target, claimed.Payload, claimed.PayloadContentType)
	w.metrics.DispatchLatency.Observe(float64(resp.ElapsedTimeMs) / 1000)

	if resp.IsSuccess() {
		if err := w.store.RecordSuccess(ctx, claimed.Attempt, resp); err != nil {
			w.recordResultFailed(ctx, "record_success", claimed, err)
			return
		}
		w.metrics.AttemptsSucceeded.Inc()
		return
	}

	delay := Backoff(claimed.Attempt.RetryCount, cfg.Worker.MinimumRetryDelay.Duration, cfg.Worker.MaximumRetryDelay.Duration)
	delayUntil := time.Now().UTC().Add(delay)

	if err := w.store.RecordFailureAndReschedule(ctx, claimed.Attempt, resp, &delayUntil); err != nil {
		w.recordResultFailed(ctx, "record_failure", claimed, err)
		return
	}
	w.metrics.AttemptsFailed.Inc()
	w.metrics.AttemptsRetried.Inc()

	if w.hotlist != nil {
		w.hotlist.RecordFailure(claimed.Attempt.SubscriptionID)
	}
}

// recordResultFailed logs and reports a failed RecordSuccess/
// RecordFailureAndReschedule call. ErrLeaseLost means the lease expired and
// another worker already reclaimed (and is now the sole owner of) this row,
// so it's an expected consequence of crash recovery, not a bug, and is
// logged at a lower level without paging the reporter.
func (w *Worker) recordResultFailed(ctx context.Context, stage string, claimed *db.ClaimedAttempt, err error) {
	if errors.Is(err, db.ErrLeaseLost) {
		w.logger.Warn("worker: lease reclaimed before result could be recorded", "stage", stage, "attempt_id", claimed.Attempt.RequestAttemptID)
		return
	}
	w.logger.Error("worker: "+stage+" failed", "error", err, "attempt_id", claimed.Attempt.RequestAttemptID)
	w.reporter.Report(ctx, err, map[string]any{"stage": stage, "attempt_id": claimed.Attempt.RequestAttemptID})
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
