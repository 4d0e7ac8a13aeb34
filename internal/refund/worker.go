package refund

import (
	"context"
	"fmt"
	"strconv"
	"time"

	campaigndomain "github.com/adlift/trafficd/internal/campaign/domain"
	"github.com/adlift/trafficd/internal/clock"
	"github.com/adlift/trafficd/internal/notification"
	obsmetrics "github.com/adlift/trafficd/internal/observability/metrics"
	"github.com/adlift/trafficd/internal/queue"
	"github.com/adlift/trafficd/internal/setting"
	walletdomain "github.com/adlift/trafficd/internal/wallet/domain"
	pkgdb "github.com/adlift/trafficd/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	skipAlreadyProcessed = "already_processed"
	skipNotFound         = "not_found"
	skipWrongStatus      = "wrong_status"
	skipNoWallet         = "no_wallet"
	skipNothingToRefund  = "nothing_to_refund"
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Queue        queue.Queue
	Ledger       queue.Ledger
	CampaignRepo campaigndomain.Repository
	WalletRepo   walletdomain.Repository
	Settings     *setting.Store
	Reporter     TrafficReporter
	Sink         notification.Sink
	GenID        *snowflake.Node
	Clock        clock.Clock
	Config       Config `optional:"true"`
}

// Worker consumes campaign IDs from the refund queue, reconciles paid cost
// against completed traffic, and credits the difference to the owner's
// wallet.
type Worker struct {
	db           *gorm.DB
	log          *zap.Logger
	queue        queue.Queue
	ledger       queue.Ledger
	campaignRepo campaigndomain.Repository
	walletRepo   walletdomain.Repository
	settings     *setting.Store
	reporter     TrafficReporter
	sink         notification.Sink
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          Config
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:           p.DB,
		log:          p.Log.Named("refund"),
		queue:        p.Queue,
		ledger:       p.Ledger,
		campaignRepo: p.CampaignRepo,
		walletRepo:   p.WalletRepo,
		settings:     p.Settings,
		reporter:     p.Reporter,
		sink:         p.Sink,
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Config.withDefaults(),
	}
}

// RunForever pops the refund queue until ctx is canceled. Pop timeouts
// bound how long a shutdown signal waits between iterations.
func (w *Worker) RunForever(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := w.queue.DequeueBlocking(ctx, queue.KeyRefundQueue, w.cfg.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("refund queue pop failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.ErrorBackoff):
			}
			continue
		}
		if item == "" {
			continue
		}

		campaignID, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			w.log.Warn("refund queue item is not a campaign id", zap.String("item", item))
			continue
		}

		if err := w.ProcessCampaign(ctx, campaignID); err != nil {
			w.log.Error("refund failed",
				zap.Int64("campaign_id", campaignID),
				zap.Error(err),
			)
		}
	}
}

// ProcessCampaign computes and applies the refund for one campaign. The
// wallet credit, the transaction record, and the user notification commit
// together; the ledger mark happens only after the commit succeeds.
func (w *Worker) ProcessCampaign(ctx context.Context, campaignID int64) error {
	id := strconv.FormatInt(campaignID, 10)
	log := w.log.With(zap.Int64("campaign_id", campaignID))
	workerMetrics := obsmetrics.Worker()

	done, err := w.ledger.IsProcessed(ctx, queue.KeyRefundProcessed, id)
	if err != nil {
		return fmt.Errorf("ledger check: %w", err)
	}
	if done {
		log.Warn("campaign already refunded, skipping")
		workerMetrics.IncRefundSkipped(skipAlreadyProcessed)
		return nil
	}

	var published *notification.Notification
	skipped := ""

	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := w.campaignRepo.GetWithChildren(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		if campaign == nil {
			log.Warn("campaign not found")
			skipped = skipNotFound
			return nil
		}
		if campaign.Status != campaigndomain.StatusCompleted && campaign.Status != campaigndomain.StatusProcessing {
			log.Warn("campaign not eligible for refund", zap.String("status", string(campaign.Status)))
			skipped = skipWrongStatus
			return nil
		}

		totalCost := campaign.TotalCost()
		completedCost, err := w.completedCost(ctx, campaign)
		if err != nil {
			return err
		}

		refund := totalCost - completedCost
		log.Info("refund computed",
			zap.Float64("total_cost", totalCost),
			zap.Float64("completed_cost", completedCost),
			zap.Float64("refund", refund),
		)
		if refund <= 0 {
			skipped = skipNothingToRefund
			return nil
		}

		wallet, err := w.walletRepo.FindByUserID(ctx, tx, campaign.UserID)
		if err != nil {
			return err
		}
		if wallet == nil {
			log.Warn("user has no wallet, refund not credited", zap.Int64("user_id", campaign.UserID))
			skipped = skipNoWallet
			return nil
		}

		txn := &walletdomain.Transaction{
			ID:         w.genID.Generate(),
			CampaignID: campaignID,
			Type:       walletdomain.TransactionRefund,
			Amount:     refund,
			Note:       fmt.Sprintf("refund for campaign %q", campaign.Name),
			CreatedAt:  w.clock.Now(),
		}
		if err := w.walletRepo.Credit(ctx, tx, wallet.ID, txn); err != nil {
			return err
		}

		n := &notification.Notification{
			ID:        w.genID.Generate(),
			UserID:    campaign.UserID,
			Title:     "Campaign refund credited",
			Body:      fmt.Sprintf("Your campaign %q ended and %.2f was returned to your wallet.", campaign.Name, refund),
			Link:      fmt.Sprintf("/campaigns/%d", campaignID),
			CreatedAt: w.clock.Now(),
		}
		if err := notification.Insert(ctx, tx, n); err != nil {
			return err
		}
		published = n
		return nil
	})
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			// the unique index caught a concurrent or redelivered refund
			log.Warn("refund already recorded for campaign, marking processed")
			return w.markProcessed(ctx, id)
		}
		return err
	}

	if skipped != "" {
		workerMetrics.IncRefundSkipped(skipped)
	}
	// a vanished or wrong-status campaign is "nothing to do", not "done":
	// leave it off the ledger so a later transition can still be refunded
	if skipped == skipNotFound || skipped == skipWrongStatus {
		return nil
	}
	if published != nil {
		workerMetrics.IncRefundApplied()
		if err := w.sink.Publish(ctx, *published); err != nil {
			log.Warn("notification publish failed", zap.Error(err))
		}
	}

	return w.markProcessed(ctx, id)
}

func (w *Worker) completedCost(ctx context.Context, campaign *campaigndomain.Campaign) (float64, error) {
	prices, err := loadUnitPrices(ctx, w.settings, w.cfg.StandardPriceKey, w.cfg.VideoPriceKey)
	if err != nil {
		return 0, fmt.Errorf("load unit prices: %w", err)
	}

	var completed float64
	for _, kw := range campaign.Keywords {
		traffic, err := w.reporter.CompletedTraffic(ctx, kw.ID, campaign.StartDate, campaign.EndDate)
		if err != nil {
			// a keyword whose count cannot be fetched contributes zero;
			// this lowers completedCost and therefore raises the refund
			w.log.Warn("traffic count unavailable, assuming zero",
				zap.Int64("campaign_id", campaign.ID),
				zap.Int64("keyword_id", kw.ID),
				zap.Error(err),
			)
			continue
		}
		completed += prices.CompletedKeywordCost(kw, traffic)
	}
	return completed, nil
}

func (w *Worker) markProcessed(ctx context.Context, id string) error {
	if err := w.ledger.MarkProcessed(ctx, queue.KeyRefundProcessed, id); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}
