package solvere

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/core-coin/solvere/internal/config"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/repository"
	"github.com/core-coin/solvere/pkg/logger"
)

const testNow = int64(1700000000)

var (
	merchantWallet = strings.Repeat("a1", 22)
	otherWallet    = strings.Repeat("b2", 22)
	payerWallet    = strings.Repeat("c3", 22)
)

func txHash(n int) string {
	return fmt.Sprintf("%064x", n)
}

// fakeChain knows one event per transaction and applies the same merchant
// check as the real verifier.
type fakeChain struct {
	mu     sync.Mutex
	events map[string]*models.PaymentEvent
	err    error
	calls  int
}

func newFakeChain() *fakeChain {
	return &fakeChain{events: make(map[string]*models.PaymentEvent)}
}

func (f *fakeChain) add(hash, merchant, payer, amount string, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events[hash] = &models.PaymentEvent{Merchant: merchant, Payer: payer, Amount: amount, Timestamp: ts, TxHash: hash, BlockNumber: 1}
}

func (f *fakeChain) VerifyPayment(ctx context.Context, hash, merchant string) (*models.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	event, ok := f.events[hash]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %w", models.ErrNotFound)
	}
	if event.Merchant != merchant {
		return nil, fmt.Errorf("payment event not found for this transaction: %w", models.ErrNotFound)
	}
	copied := *event
	return &copied, nil
}

type notification struct {
	merchantID string
	event      string
	data       map[string]interface{}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (r *recordingNotifier) Notify(ctx context.Context, merchantID, event string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, notification{merchantID: merchantID, event: event, data: data})
}

func (r *recordingNotifier) byEvent(event string) []notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification
	for _, n := range r.events {
		if n.event == event {
			out = append(out, n)
		}
	}
	return out
}

type mapCache struct {
	mu   sync.Mutex
	ids  map[string]string
	hits int
}

func (c *mapCache) GetMerchantID(ctx context.Context, wallet string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.ids[wallet]
	if id != "" {
		c.hits++
	}
	return id, nil
}

func (c *mapCache) SetMerchantID(ctx context.Context, wallet, merchantID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[wallet] = merchantID
	return nil
}

type testEnv struct {
	solvere  *Solvere
	db       *repository.Database
	chain    *fakeChain
	notifier *recordingNotifier
	now      *atomic.Int64
}

func testConfig() *config.Config {
	return &config.Config{
		WebhookTimeout: time.Second,
		SweepInterval:  time.Minute,
	}
}

func setupDB(t *testing.T) *repository.Database {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, repository.Migrate(conn))
	return repository.New(conn, logger.NewNop())
}

func setup(t *testing.T, opts ...Option) *testEnv {
	env := &testEnv{
		db:       setupDB(t),
		chain:    newFakeChain(),
		notifier: &recordingNotifier{},
		now:      &atomic.Int64{},
	}
	env.now.Store(testNow)

	opts = append([]Option{WithClock(func() time.Time { return time.Unix(env.now.Load(), 0) })}, opts...)
	env.solvere = NewSolvere(env.db, env.chain, env.notifier, logger.NewNop(), testConfig(), opts...)
	return env
}

func (e *testEnv) countPayments(t *testing.T, hash string) int64 {
	var count int64
	require.NoError(t, e.db.Conn.Model(&models.Payment{}).Where("tx_hash = ?", hash).Count(&count).Error)
	return count
}

func (e *testEnv) merchant(t *testing.T, wallet string) *models.Merchant {
	id, err := e.solvere.ResolveOrCreateMerchant(context.Background(), wallet)
	require.NoError(t, err)
	m, err := e.db.GetMerchantByID(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (e *testEnv) plan(t *testing.T, merchantID, interval string) *models.Plan {
	p, err := e.solvere.CreatePlan(context.Background(), merchantID, "Pro", "1000", interval)
	require.NoError(t, err)
	return p
}

func (e *testEnv) subscription(t *testing.T, m *models.Merchant, p *models.Plan) *models.Subscription {
	s, err := e.solvere.CreateSubscription(context.Background(), models.CreateSubscriptionParams{
		MerchantID: m.ID,
		Wallet:     payerWallet,
		PlanID:     p.ID,
	})
	require.NoError(t, err)
	return s
}

func (e *testEnv) setStatus(t *testing.T, id, status string, periodEnd int64) {
	require.NoError(t, e.db.UpdateSubscription(context.Background(), id, map[string]interface{}{
		"status":             status,
		"current_period_end": periodEnd,
	}))
}

// slowNotifier holds every delivery for delay before recording it.
type slowNotifier struct {
	recordingNotifier
	delay time.Duration
}

func (n *slowNotifier) Notify(ctx context.Context, merchantID, event string, data map[string]interface{}) {
	time.Sleep(n.delay)
	n.recordingNotifier.Notify(ctx, merchantID, event, data)
}

func TestSolvere_StopWaitsForJobs(t *testing.T) {
	db := setupDB(t)
	notifier := &slowNotifier{delay: 100 * time.Millisecond}
	cfg := testConfig()
	cfg.SweepInterval = 20 * time.Millisecond
	s := NewSolvere(db, newFakeChain(), notifier, logger.NewNop(), cfg,
		WithClock(func() time.Time { return time.Unix(testNow, 0) }))

	ctx := context.Background()
	id, err := s.ResolveOrCreateMerchant(ctx, merchantWallet)
	require.NoError(t, err)
	plan, err := s.CreatePlan(ctx, id, "Pro", "1000", "monthly")
	require.NoError(t, err)
	sub, err := s.CreateSubscription(ctx, models.CreateSubscriptionParams{MerchantID: id, Wallet: payerWallet, PlanID: plan.ID})
	require.NoError(t, err)
	require.NoError(t, db.UpdateSubscription(ctx, sub.ID, map[string]interface{}{"current_period_end": testNow - 1}))

	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "jobs are started once")

	assert.Eventually(t, func() bool {
		stored, err := db.GetSubscription(ctx, sub.ID)
		return err == nil && stored.Status == models.SubscriptionStatusExpired
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	// the sweep and the notification it fired are both done once Stop returns
	assert.Len(t, notifier.byEvent(models.EventSubscriptionExpired), 1)

	// a second Stop has nothing left to stop
	s.Stop()
}

func TestSolvere_StartContextStopsJobs(t *testing.T) {
	env := setup(t)
	env.solvere.config.SweepInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, env.solvere.Start(ctx))
	cancel()

	assert.Eventually(t, func() bool {
		env.solvere.jobsMu.Lock()
		defer env.solvere.jobsMu.Unlock()
		return env.solvere.jobs == nil
	}, 2*time.Second, 10*time.Millisecond)
}
