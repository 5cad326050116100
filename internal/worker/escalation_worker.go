package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/superpool/dispute-service/internal/observability"
	"github.com/superpool/dispute-service/internal/service"
)

// scanLockKey elects one scanning replica per pass.
const scanLockKey = "escalation-scan"

// Scanner runs one escalation pass.
type Scanner interface {
	Scan(ctx context.Context, now time.Time) (service.ScanResult, error)
}

// EscalationWorkerConfig configures the periodic escalation scan.
type EscalationWorkerConfig struct {
	Interval time.Duration
	LockTTL  time.Duration
	Locker   service.Locker
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// EscalationWorker triggers escalation scans on a fixed interval.
type EscalationWorker struct {
	scanner Scanner
	cfg     EscalationWorkerConfig
}

// NewEscalationWorker fills defaults for missing config.
func NewEscalationWorker(scanner Scanner, cfg EscalationWorkerConfig) *EscalationWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.Locker == nil {
		cfg.Locker = service.NewLocalLocker()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EscalationWorker{scanner: scanner, cfg: cfg}
}

// Start runs a pass every interval until ctx is cancelled. The returned
// channel closes when the loop has exited.
func (w *EscalationWorker) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()
		w.cfg.Logger.Info("escalation worker started", zap.Duration("interval", w.cfg.Interval))
		for {
			select {
			case <-ctx.Done():
				w.cfg.Logger.Info("escalation worker stopped")
				return
			case <-ticker.C:
				if _, _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
					w.cfg.Logger.Error("escalation scan failed", zap.Error(err))
				}
			}
		}
	}()
	return done
}

// RunOnce performs a single pass. It reports ran=false when another
// replica holds the scan lock.
func (w *EscalationWorker) RunOnce(ctx context.Context) (result service.ScanResult, ran bool, err error) {
	unlock, err := w.cfg.Locker.TryAcquire(ctx, scanLockKey, w.cfg.LockTTL)
	if errors.Is(err, service.ErrLockHeld) {
		w.cfg.Logger.Debug("escalation scan running elsewhere")
		return result, false, nil
	}
	if err != nil {
		return result, false, err
	}
	defer unlock()

	started := w.cfg.Now()
	result, err = w.scanner.Scan(ctx, started)
	took := time.Since(started)
	w.cfg.Metrics.RecordScan(started, took, len(result.Escalated))

	fields := []zap.Field{
		zap.Int("checked", result.Checked),
		zap.Int("escalated", len(result.Escalated)),
		zap.Int("skipped", result.Skipped),
		zap.Duration("took", took),
	}
	if len(result.Escalated) > 0 {
		w.cfg.Logger.Info("escalation scan finished", fields...)
	} else {
		w.cfg.Logger.Debug("escalation scan finished", fields...)
	}
	return result, true, err
}
