package refund

import (
	"context"
	"errors"
	"testing"
	"time"

	campaigndomain "github.com/adlift/trafficd/internal/campaign/domain"
	campaignrepository "github.com/adlift/trafficd/internal/campaign/repository"
	"github.com/adlift/trafficd/internal/clock"
	"github.com/adlift/trafficd/internal/notification"
	"github.com/adlift/trafficd/internal/queue"
	"github.com/adlift/trafficd/internal/setting"
	walletdomain "github.com/adlift/trafficd/internal/wallet/domain"
	walletrepository "github.com/adlift/trafficd/internal/wallet/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeReporter struct {
	counts map[int64]int64
	errs   map[int64]error
	calls  int
}

func (r *fakeReporter) CompletedTraffic(ctx context.Context, keywordID int64, start, end time.Time) (int64, error) {
	_ = ctx
	_, _ = start, end
	r.calls++
	if err, ok := r.errs[keywordID]; ok {
		return 0, err
	}
	return r.counts[keywordID], nil
}

type captureSink struct {
	published []notification.Notification
}

func (s *captureSink) Publish(ctx context.Context, n notification.Notification) error {
	_ = ctx
	s.published = append(s.published, n)
	return nil
}

type fixture struct {
	worker   *Worker
	db       *gorm.DB
	queue    *queue.MemoryQueue
	ledger   *queue.MemoryLedger
	reporter *fakeReporter
	sink     *captureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&campaigndomain.Campaign{},
		&campaigndomain.Keyword{},
		&campaigndomain.Link{},
		&walletdomain.Wallet{},
		&walletdomain.Transaction{},
		&notification.Notification{},
		&setting.Setting{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	reporter := &fakeReporter{counts: map[int64]int64{}, errs: map[int64]error{}}
	sink := &captureSink{}
	q := queue.NewMemoryQueue()
	ledger := queue.NewMemoryLedger()

	worker := NewWorker(Params{
		DB:           db,
		Log:          zap.NewNop(),
		Queue:        q,
		Ledger:       ledger,
		CampaignRepo: campaignrepository.Provide(db),
		WalletRepo:   walletrepository.Provide(db),
		Settings:     setting.NewStore(db),
		Reporter:     reporter,
		Sink:         sink,
		GenID:        node,
		Clock:        clock.NewFakeClock(time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)),
	})

	return &fixture{worker: worker, db: db, queue: q, ledger: ledger, reporter: reporter, sink: sink}
}

func (f *fixture) seedCampaign(t *testing.T, id, userID int64, status campaigndomain.CampaignStatus, keywords []campaigndomain.Keyword, links []campaigndomain.Link) {
	t.Helper()
	require.NoError(t, f.db.Create(&campaigndomain.Campaign{
		ID:        id,
		UserID:    userID,
		Name:      "spring push",
		Status:    status,
		StartDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
	}).Error)
	for i := range keywords {
		keywords[i].CampaignID = id
		require.NoError(t, f.db.Create(&keywords[i]).Error)
	}
	for i := range links {
		links[i].CampaignID = id
		require.NoError(t, f.db.Create(&links[i]).Error)
	}
}

func (f *fixture) seedWallet(t *testing.T, id, userID int64, balance float64) {
	t.Helper()
	require.NoError(t, f.db.Create(&walletdomain.Wallet{ID: id, UserID: userID, Balance: balance}).Error)
}

func (f *fixture) walletBalance(t *testing.T, id int64) float64 {
	t.Helper()
	var wallet walletdomain.Wallet
	require.NoError(t, f.db.First(&wallet, id).Error)
	return wallet.Balance
}

func (f *fixture) transactionCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&walletdomain.Transaction{}).Count(&count).Error)
	return count
}

// Scenario: campaign ended with zero delivered traffic, full cost comes back.
func TestRefundFullCostWhenNoTrafficDelivered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 60, TimeOnSite: 30}},
		[]campaigndomain.Link{{ID: 21, URL: "https://example.com", Cost: 40}},
	)
	f.seedWallet(t, 5, 10, 15)

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	assert.InDelta(t, 115.0, f.walletBalance(t, 5), 1e-9)
	assert.Equal(t, int64(1), f.transactionCount(t))

	done, err := f.ledger.IsProcessed(ctx, queue.KeyRefundProcessed, "1")
	require.NoError(t, err)
	assert.True(t, done)

	require.Len(t, f.sink.published, 1)
	assert.Equal(t, int64(10), f.sink.published[0].UserID)
}

// Scenario: delivered traffic covers the whole cost, nothing to refund,
// but the campaign is still marked processed.
func TestNoRefundWhenCostFullyConsumed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 100 visits x 1s on site x price 1 = 100 = total cost
	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 100, TimeOnSite: 1}},
		nil,
	)
	f.seedWallet(t, 5, 10, 15)
	f.reporter.counts[11] = 100

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	assert.InDelta(t, 15.0, f.walletBalance(t, 5), 1e-9)
	assert.Zero(t, f.transactionCount(t))
	assert.Empty(t, f.sink.published)

	done, err := f.ledger.IsProcessed(ctx, queue.KeyRefundProcessed, "1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestVideoKeywordsPricedPerView(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// video: 10 views x price 2 = 20; standard: 10 visits x 5s x price 3 = 150
	require.NoError(t, f.db.Create(&setting.Setting{Name: "video_keyword_unit_price", Value: "2"}).Error)
	require.NoError(t, f.db.Create(&setting.Setting{Name: "keyword_unit_price", Value: "3"}).Error)

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{
			{ID: 11, Word: "launch teaser", Type: campaigndomain.KeywordVideo, Cost: 100},
			{ID: 12, Word: "vpn deal", Type: campaigndomain.KeywordStandard, Cost: 200, TimeOnSite: 5},
		},
		nil,
	)
	f.seedWallet(t, 5, 10, 0)
	f.reporter.counts[11] = 10
	f.reporter.counts[12] = 10

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	// refund = 300 - (20 + 150) = 130
	assert.InDelta(t, 130.0, f.walletBalance(t, 5), 1e-9)
}

func TestLedgeredCampaignIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 100, TimeOnSite: 30}},
		nil,
	)
	f.seedWallet(t, 5, 10, 0)
	require.NoError(t, f.ledger.MarkProcessed(ctx, queue.KeyRefundProcessed, "1"))

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	assert.Zero(t, f.walletBalance(t, 5))
	assert.Zero(t, f.transactionCount(t))
	assert.Zero(t, f.reporter.calls, "skipped campaign must not hit the traffic api")
}

func TestDoubleProcessingCreditsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 100, TimeOnSite: 30}},
		nil,
	)
	f.seedWallet(t, 5, 10, 0)

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))
	// same ID delivered twice (scanner ran twice before the drain)
	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	assert.InDelta(t, 100.0, f.walletBalance(t, 5), 1e-9)
	assert.Equal(t, int64(1), f.transactionCount(t))
}

func TestWrongStatusSkippedWithoutLedgerMark(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusActive,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 100, TimeOnSite: 30}},
		nil,
	)
	f.seedWallet(t, 5, 10, 0)

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	assert.Zero(t, f.transactionCount(t))
	done, err := f.ledger.IsProcessed(ctx, queue.KeyRefundProcessed, "1")
	require.NoError(t, err)
	assert.False(t, done, "an active campaign can still expire and be refunded later")
}

func TestMissingWalletSkipsCredit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 100, TimeOnSite: 30}},
		nil,
	)

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	assert.Zero(t, f.transactionCount(t))
	assert.Empty(t, f.sink.published)
}

func TestUnreachableTrafficAPIRaisesRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{
			{ID: 11, Word: "vpn deal", Cost: 60, TimeOnSite: 1},
			{ID: 12, Word: "cheap vps", Cost: 40, TimeOnSite: 1},
		},
		nil,
	)
	f.seedWallet(t, 5, 10, 0)
	f.reporter.counts[11] = 60
	f.reporter.errs[12] = errors.New("503 from counting service")

	require.NoError(t, f.worker.ProcessCampaign(ctx, 1))

	// keyword 12 contributes zero completed cost, so its 40 comes back
	assert.InDelta(t, 40.0, f.walletBalance(t, 5), 1e-9)
}

// Stop must cancel the pop loop and wait for it, so no campaign is
// processed after the hook returns.
func TestLifecycleStopHaltsConsumption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.seedCampaign(t, 1, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 11, Word: "vpn deal", Cost: 50, TimeOnSite: 30}},
		nil,
	)
	f.seedCampaign(t, 2, 10, campaigndomain.StatusCompleted,
		[]campaigndomain.Keyword{{ID: 12, Word: "cheap vps", Cost: 50, TimeOnSite: 30}},
		nil,
	)
	f.seedWallet(t, 5, 10, 0)

	lc := fxtest.NewLifecycle(t)
	runWorker(lc, f.worker)
	lc.RequireStart()

	require.NoError(t, f.queue.Enqueue(ctx, queue.KeyRefundQueue, "1"))

	deadline := time.After(2 * time.Second)
	for f.transactionCount(t) < 1 {
		select {
		case <-deadline:
			t.Fatal("running worker never processed the enqueued campaign")
		case <-time.After(5 * time.Millisecond):
		}
	}

	lc.RequireStop()

	require.NoError(t, f.queue.Enqueue(ctx, queue.KeyRefundQueue, "2"))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int64(1), f.transactionCount(t), "stopped worker must not keep consuming")
}

func TestMissingCampaignIsWarnedAndSkipped(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.worker.ProcessCampaign(context.Background(), 999))
	assert.Zero(t, f.transactionCount(t))
}
