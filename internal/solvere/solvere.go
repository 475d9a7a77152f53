package solvere

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/core-coin/solvere/internal/config"
	"github.com/core-coin/solvere/internal/metrics"
	"github.com/core-coin/solvere/internal/models"
	"github.com/core-coin/solvere/internal/scheduler"
	"github.com/core-coin/solvere/pkg/logger"
)

const (
	// renewalBatchSize caps the subscriptions handled by one reminder run
	renewalBatchSize = 20
	// defaultPendingInvoices is the page size of the invoicing queue
	defaultPendingInvoices = 10
	// defaultSweepBatchSize bounds the ids bound into one expire statement
	defaultSweepBatchSize = 500
)

// Solvere is the main struct for the Solvere application
// It contains all the necessary components to run the application
// and serves all business logic
type Solvere struct {
	logger *logger.Logger
	config *config.Config

	repo        models.Repository
	chain       models.ChainVerifier
	notificator models.NotificationService
	cache       models.MerchantCache
	metrics     *metrics.Metrics

	clock          func() time.Time
	sweepBatchSize int

	jobsMu sync.Mutex
	jobs   *scheduler.JobScheduler

	// in-flight notifications
	wg sync.WaitGroup
}

type Option func(*Solvere)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(s *Solvere) { s.clock = clock }
}

// WithMerchantCache puts a cache in front of merchant lookups by wallet.
func WithMerchantCache(cache models.MerchantCache) Option {
	return func(s *Solvere) { s.cache = cache }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Solvere) { s.metrics = m }
}

// NewSolvere creates a new Solvere instance
func NewSolvere(
	repo models.Repository,
	chain models.ChainVerifier,
	notificator models.NotificationService,
	logger *logger.Logger,
	config *config.Config,
	opts ...Option,
) *Solvere {
	s := &Solvere{
		repo:        repo,
		chain:       chain,
		notificator: notificator,
		logger:      logger,
		config:      config,
		clock:       time.Now,

		sweepBatchSize: defaultSweepBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start schedules the expiration sweep and, when enabled, the renewal
// reminders. The jobs stop when ctx is done or Stop is called.
func (s *Solvere) Start(ctx context.Context) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if s.jobs != nil {
		return fmt.Errorf("background jobs already started")
	}

	js, err := scheduler.NewJobScheduler(s.logger.Named("scheduler"))
	if err != nil {
		return err
	}

	if err := js.AddJob("subscription-sweep", s.config.SweepInterval, func(ctx context.Context) {
		if _, err := s.SweepExpired(ctx, s.clock().Unix()); err != nil {
			s.logger.Errorw("Expiration sweep failed", "error", err)
		}
	}); err != nil {
		return err
	}

	if s.config.RenewalReminderInterval > 0 {
		if err := js.AddJob("renewal-reminders", s.config.RenewalReminderInterval, func(ctx context.Context) {
			if _, err := s.RunRenewalReminders(ctx, s.clock().Unix()); err != nil {
				s.logger.Errorw("Renewal reminders failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	s.jobs = js
	js.Start()
	go func() {
		<-ctx.Done()
		s.stopJobs()
	}()
	return nil
}

// Stop cancels the background jobs and returns once a running job has
// finished and every notification it fired is delivered.
func (s *Solvere) Stop() {
	s.stopJobs()
	s.wg.Wait()
}

// stopJobs holds jobsMu for the whole shutdown so a concurrent caller
// returns only after the jobs are gone.
func (s *Solvere) stopJobs() {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if s.jobs == nil {
		return
	}
	if err := s.jobs.Stop(); err != nil {
		s.logger.Errorw("Failed to stop scheduler", "error", err)
	}
	s.jobs = nil
}

// Wait blocks until all in-flight notifications are done.
func (s *Solvere) Wait() {
	s.wg.Wait()
}

// notify delivers event in the background. The caller never waits on it and
// never sees its outcome.
func (s *Solvere) notify(merchantID, event string, data map[string]interface{}) {
	if s.notificator == nil {
		return
	}
	s.safeGo(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout())
		defer cancel()
		s.notificator.Notify(ctx, merchantID, event, data)
	}, event)
}

// safeGo runs fn on a tracked goroutine with panic recovery
func (s *Solvere) safeGo(fn func(), context string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Errorw("Goroutine panicked",
					"context", context,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// notifyTimeout bounds one fan-out: a merchant lookup plus the webhook and
// operator feed deliveries.
func (s *Solvere) notifyTimeout() time.Duration {
	if s.config == nil || s.config.WebhookTimeout <= 0 {
		return 30 * time.Second
	}
	return 3 * s.config.WebhookTimeout
}

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", models.ErrValidation, fmt.Sprintf(format, args...))
}
