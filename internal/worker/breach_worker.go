package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/deskops/helpdesk-sla/internal/sla"
)

// Scanner runs one breach scanner pass.
type Scanner interface {
	Scan(ctx context.Context) (sla.ScanResult, error)
}

// BreachWorker runs the SLA breach scanner on a cron schedule. Overlapping
// runs are skipped.
type BreachWorker struct {
	cron    *cron.Cron
	scanner Scanner
	logger  *zap.Logger
	timeout time.Duration
}

// NewBreachWorker schedules scanner on spec (standard cron syntax or
// descriptors such as "@every 15m"). timeout bounds one pass; zero means
// no bound.
func NewBreachWorker(spec string, scanner Scanner, timeout time.Duration, logger *zap.Logger) (*BreachWorker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cronLogger := zapCronLogger{logger.Sugar()}
	w := &BreachWorker{
		cron:    cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
		scanner: scanner,
		logger:  logger,
		timeout: timeout,
	}
	if _, err := w.cron.AddFunc(spec, w.run); err != nil {
		return nil, fmt.Errorf("schedule breach scan %q: %w", spec, err)
	}
	return w, nil
}

// Start begins running scheduled scans in the background.
func (w *BreachWorker) Start() {
	w.cron.Start()
	w.logger.Info("breach worker started")
}

// Stop halts scheduling and waits for a running scan to finish or ctx to
// expire.
func (w *BreachWorker) Stop(ctx context.Context) {
	done := w.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		w.logger.Warn("breach worker stop timed out")
	}
}

// RunOnce performs a single scan immediately.
func (w *BreachWorker) RunOnce(ctx context.Context) (sla.ScanResult, error) {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	return w.scanner.Scan(ctx)
}

func (w *BreachWorker) run() {
	if _, err := w.RunOnce(context.Background()); err != nil {
		w.logger.Error("scheduled breach scan failed", zap.Error(err))
	}
}

type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
