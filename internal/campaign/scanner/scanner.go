package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/adlift/trafficd/internal/campaign/domain"
	"github.com/adlift/trafficd/internal/clock"
	obsmetrics "github.com/adlift/trafficd/internal/observability/metrics"
	"github.com/adlift/trafficd/internal/queue"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scanner: missing dependency")

type Params struct {
	fx.In

	Log          *zap.Logger
	CampaignRepo domain.Repository
	Queue        queue.Queue
	Ledger       queue.Ledger
	Locker       *queue.Locker `optional:"true"`
	Clock        clock.Clock
	Config       Config `optional:"true"`
}

// Scanner runs the scheduled campaign jobs: same-day activation, expiry
// with refund enqueue, and the reconciliation sweep for campaigns that
// were transitioned but never queued.
type Scanner struct {
	log          *zap.Logger
	campaignRepo domain.Repository
	queue        queue.Queue
	ledger       queue.Ledger
	locker       *queue.Locker
	clock        clock.Clock
	cfg          Config
}

func New(p Params) (*Scanner, error) {
	if p.Log == nil || p.CampaignRepo == nil || p.Queue == nil || p.Ledger == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scanner{
		log:          p.Log.Named("scanner").With(zap.String("component", "scanner")),
		campaignRepo: p.CampaignRepo,
		queue:        p.Queue,
		ledger:       p.Ledger,
		locker:       p.Locker,
		clock:        p.Clock,
		cfg:          p.Config.withDefaults(),
	}, nil
}

func (s *Scanner) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	log := s.log.With(zap.String("job", name))
	workerMetrics := obsmetrics.Worker()
	workerMetrics.IncJobRun(name)

	err := fn(ctx)
	workerMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		workerMetrics.IncJobTimeout(name)
		workerMetrics.IncJobError(name, err)
		log.Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}

	workerMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one scan cycle under the run lock. A second process
// (or an overlapping trigger) observing the lock skips the cycle rather
// than double-enqueueing refunds.
func (s *Scanner) RunOnce(ctx context.Context) error {
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, queue.KeyScanLock, s.cfg.LockTTL)
		if err != nil {
			return fmt.Errorf("scan lock: %w", err)
		}
		if !ok {
			s.log.Info("scan already running elsewhere, skipping cycle")
			return nil
		}
		defer func() {
			if err := s.locker.Release(ctx, queue.KeyScanLock, token); err != nil {
				s.log.Warn("scan lock release failed", zap.Error(err))
			}
		}()
	}

	var err error
	enqueued := make(map[int64]struct{})

	err = errors.Join(err, s.runJob(ctx, "activate_campaigns", s.ActivateJob))
	err = errors.Join(err, s.runJob(ctx, "expire_campaigns", func(ctx context.Context) error {
		return s.ExpireJob(ctx, enqueued)
	}))
	err = errors.Join(err, s.runJob(ctx, "reconcile_refunds", func(ctx context.Context) error {
		return s.ReconcileJob(ctx, enqueued)
	}))
	return err
}

// RunForever runs a scan immediately and then on every interval tick.
func (s *Scanner) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scan cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ActivateJob moves NOT_STARTED campaigns whose start date has arrived to
// ACTIVE.
func (s *Scanner) ActivateJob(ctx context.Context) error {
	now := s.clock.Now()
	campaigns, err := s.campaignRepo.FindStartingBy(ctx, now)
	if err != nil {
		return err
	}

	for _, c := range campaigns {
		if err := s.campaignRepo.Activate(ctx, c.ID); err != nil {
			s.log.Warn("campaign activation failed",
				zap.Int64("campaign_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		s.log.Info("campaign activated", zap.Int64("campaign_id", c.ID))
	}
	return nil
}

// ExpireJob finds campaigns past their end date, transitions each inside
// its own transaction (ACTIVE becomes COMPLETED, PROCESSING becomes
// CANCEL, children forced INACTIVE), and batch-enqueues the transitioned
// IDs for refund computation. A campaign whose transaction fails keeps its
// old status, so the next cycle naturally retries it.
func (s *Scanner) ExpireJob(ctx context.Context, enqueued map[int64]struct{}) error {
	cutoff := s.cutoff()
	campaigns, err := s.campaignRepo.FindExpiring(ctx, cutoff)
	if err != nil {
		return err
	}

	var ids []string
	for _, c := range campaigns {
		done, err := s.ledger.IsProcessed(ctx, queue.KeyRefundProcessed, strconv.FormatInt(c.ID, 10))
		if err != nil {
			return err
		}
		if done {
			continue
		}

		target := domain.StatusCompleted
		if c.Status == domain.StatusProcessing {
			target = domain.StatusCancel
		}
		if err := s.campaignRepo.Transition(ctx, c.ID, target); err != nil {
			s.log.Warn("campaign transition failed",
				zap.Int64("campaign_id", c.ID),
				zap.String("target", string(target)),
				zap.Error(err),
			)
			continue
		}

		s.log.Info("campaign expired",
			zap.Int64("campaign_id", c.ID),
			zap.String("status", string(target)),
		)
		ids = append(ids, strconv.FormatInt(c.ID, 10))
		enqueued[c.ID] = struct{}{}
	}

	if len(ids) == 0 {
		return nil
	}
	if err := s.queue.EnqueueBatch(ctx, queue.KeyRefundQueue, ids); err != nil {
		return fmt.Errorf("enqueue refunds: %w", err)
	}
	s.log.Info("refunds enqueued", zap.Int("count", len(ids)))
	return nil
}

// ReconcileJob re-enqueues finished campaigns that never made it onto the
// refund queue, closing the crash window between transition and enqueue.
// Re-enqueueing an ID the worker has already handled is harmless: the
// worker consults the ledger before touching the wallet.
func (s *Scanner) ReconcileJob(ctx context.Context, justEnqueued map[int64]struct{}) error {
	since := s.clock.Now().Add(-s.cfg.ReconcileWindow)
	ids, err := s.campaignRepo.FindFinishedSince(ctx, since)
	if err != nil {
		return err
	}

	var stranded []string
	for _, id := range ids {
		if _, ok := justEnqueued[id]; ok {
			continue
		}
		done, err := s.ledger.IsProcessed(ctx, queue.KeyRefundProcessed, strconv.FormatInt(id, 10))
		if err != nil {
			return err
		}
		if done {
			continue
		}
		stranded = append(stranded, strconv.FormatInt(id, 10))
	}

	if len(stranded) == 0 {
		return nil
	}
	if err := s.queue.EnqueueBatch(ctx, queue.KeyRefundQueue, stranded); err != nil {
		return fmt.Errorf("enqueue stranded refunds: %w", err)
	}
	s.log.Info("stranded refunds re-enqueued", zap.Int("count", len(stranded)))
	return nil
}

func (s *Scanner) cutoff() time.Time {
	now := s.clock.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), s.cfg.CutoffHour, 0, 0, 0, time.UTC)
}
