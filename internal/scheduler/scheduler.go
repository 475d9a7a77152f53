package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/core-coin/solvere/pkg/logger"
)

// JobScheduler runs the periodic background jobs of the service.
type JobScheduler struct {
	logger    *logger.Logger
	scheduler gocron.Scheduler

	// handed to every run, canceled by Stop
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.RWMutex
	jobs map[string]gocron.Job
}

func NewJobScheduler(logger *logger.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		logger:    logger,
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// AddJob registers fn to run every interval. A run that is still in progress
// when the next one is due makes the scheduler skip ahead instead of
// overlapping runs.
func (js *JobScheduler) AddJob(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	js.mu.Lock()
	defer js.mu.Unlock()

	if _, exists := js.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			fn(js.ctx)
			js.logger.Debugw("Job finished", "job", name, "duration", time.Since(start))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to add job %s: %w", name, err)
	}

	js.jobs[name] = job
	js.logger.Infow("Job scheduled", "job", name, "interval", interval)
	return nil
}

// JobNames returns the registered job names, sorted.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (js *JobScheduler) Start() {
	js.logger.Info("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop cancels the context of running jobs and waits for them to return.
func (js *JobScheduler) Stop() error {
	js.logger.Info("Stopping background job scheduler")
	js.cancel()
	return js.scheduler.Shutdown()
}
