package mailer

import (
	"context"
	"sync"
	"time"

	"github.com/adlift/trafficd/internal/clock"
	obsmetrics "github.com/adlift/trafficd/internal/observability/metrics"
	"github.com/adlift/trafficd/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// TransportFactory builds a fresh transport, used at start and whenever
// the health check finds the current one dead.
type TransportFactory func() Transport

type Params struct {
	fx.In

	Log     *zap.Logger
	Queue   queue.Queue
	Clock   clock.Clock
	Factory TransportFactory
	Config  Config `optional:"true"`
}

// Worker drains the primary and retry email queues concurrently and keeps
// the mail transport healthy.
type Worker struct {
	log     *zap.Logger
	queue   queue.Queue
	clock   clock.Clock
	factory TransportFactory
	cfg     Config

	mu        sync.RWMutex
	transport Transport

	wg sync.WaitGroup
}

func NewWorker(p Params) *Worker {
	return &Worker{
		log:       p.Log.Named("mailer"),
		queue:     p.Queue,
		clock:     p.Clock,
		factory:   p.Factory,
		cfg:       p.Config.withDefaults(),
		transport: p.Factory(),
	}
}

// Start launches the primary loop, the retry loop, and the health check.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(3)
	go func() {
		defer w.wg.Done()
		w.popLoop(ctx, queue.KeyEmailQueue, w.handlePrimary)
	}()
	go func() {
		defer w.wg.Done()
		w.popLoop(ctx, queue.KeyEmailRetryQueue, w.handleRetry)
	}()
	go func() {
		defer w.wg.Done()
		w.healthLoop(ctx)
	}()
}

// Wait blocks until all loops have observed cancellation and exited, then
// closes the transport.
func (w *Worker) Wait() {
	w.wg.Wait()
	if err := w.currentTransport().Close(); err != nil {
		w.log.Warn("transport close failed", zap.Error(err))
	}
}

func (w *Worker) popLoop(ctx context.Context, key string, handle func(ctx context.Context, task *Task)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		raw, err := w.queue.DequeueBlocking(ctx, key, w.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("email queue pop failed", zap.String("queue", key), zap.Error(err))
			if !w.sleep(ctx, w.cfg.ErrorBackoff) {
				return
			}
			continue
		}
		if raw == "" {
			continue
		}

		task, err := DecodeTask(raw)
		if err != nil {
			w.log.Warn("undecodable email task dropped",
				zap.String("queue", key),
				zap.Error(err),
			)
			continue
		}
		handle(ctx, task)
	}
}

func (w *Worker) handlePrimary(ctx context.Context, task *Task) {
	w.deliver(ctx, task)
}

// handleRetry enforces the delay gate: a task younger than the first
// backoff delay goes straight back onto the retry queue unchanged.
func (w *Worker) handleRetry(ctx context.Context, task *Task) {
	age := w.clock.Now().Sub(task.EnqueuedAt())
	if age < w.cfg.retryGate() {
		if err := w.requeue(ctx, task, false); err != nil {
			w.log.Warn("retry push-back failed", zap.String("to", task.To), zap.Error(err))
		}
		// everything behind this task is likely gated too
		w.sleep(ctx, w.cfg.GateBackoff)
		return
	}
	w.deliver(ctx, task)
}

// deliver runs one delivery cycle: up to SyncAttempts sends with backoff
// sleeps in between, all counted against the task's cumulative budget.
// The cycle ends in SENT, RETRY_SCHEDULED (pushed to the retry queue with
// a refreshed timestamp) or DROPPED.
func (w *Worker) deliver(ctx context.Context, task *Task) State {
	log := w.log.With(zap.String("to", task.To), zap.String("subject", task.Subject))
	workerMetrics := obsmetrics.Worker()
	maxAttempts := w.maxAttempts(task)

	cycleAttempts := 0
	for {
		if task.Attempts >= maxAttempts || cycleAttempts >= w.cfg.SyncAttempts {
			break
		}

		task.Attempts++
		cycleAttempts++
		if task.Attempts > 1 {
			workerMetrics.IncEmailRetry()
		}

		err := w.currentTransport().Send(ctx, task)
		if err == nil {
			workerMetrics.IncEmailSent()
			log.Info("email sent", zap.Int("attempts", task.Attempts))
			return StateSent
		}
		if ctx.Err() != nil {
			// shutdown mid-cycle: reschedule rather than burn the budget
			w.rescheduleWithBestEffort(task, log)
			return StateRetryScheduled
		}

		log.Warn("email send failed",
			zap.Int("attempt", task.Attempts),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err),
		)

		if task.Attempts < maxAttempts && cycleAttempts < w.cfg.SyncAttempts {
			if !w.sleep(ctx, w.cfg.backoffDelay(task.Attempts)) {
				w.rescheduleWithBestEffort(task, log)
				return StateRetryScheduled
			}
		}
	}

	if task.Attempts >= maxAttempts {
		workerMetrics.IncEmailFailed()
		log.Error("email dropped after exhausting retries", zap.Int("attempts", task.Attempts))
		return StateDropped
	}

	if err := w.requeue(ctx, task, true); err != nil {
		log.Error("email reschedule failed, task lost", zap.Error(err))
		workerMetrics.IncEmailFailed()
		return StateDropped
	}
	log.Info("email rescheduled", zap.Int("attempts", task.Attempts))
	return StateRetryScheduled
}

// maxAttempts honors a smaller per-task retries option but never exceeds
// the configured cumulative cap.
func (w *Worker) maxAttempts(task *Task) int {
	max := w.cfg.MaxAttempts
	if task.Options != nil && task.Options.Retries > 0 && task.Options.Retries < max {
		max = task.Options.Retries
	}
	return max
}

func (w *Worker) requeue(ctx context.Context, task *Task, refresh bool) error {
	if refresh {
		task.Refresh(w.clock.Now())
	}
	raw, err := task.Encode()
	if err != nil {
		return err
	}
	return w.queue.Enqueue(ctx, queue.KeyEmailRetryQueue, raw)
}

func (w *Worker) rescheduleWithBestEffort(task *Task, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.requeue(ctx, task, true); err != nil {
		log.Warn("email reschedule during shutdown failed", zap.Error(err))
	}
}

func (w *Worker) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := w.currentTransport().Ping(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("mail transport unhealthy, recreating", zap.Error(err))
			w.replaceTransport()
		}
	}
}

func (w *Worker) currentTransport() Transport {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.transport
}

func (w *Worker) replaceTransport() {
	fresh := w.factory()
	w.mu.Lock()
	old := w.transport
	w.transport = fresh
	w.mu.Unlock()
	if err := old.Close(); err != nil {
		w.log.Warn("stale transport close failed", zap.Error(err))
	}
}

// sleep waits for d unless ctx is canceled first. Returns false on cancel.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
