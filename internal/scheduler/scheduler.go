// Package scheduler runs housekeeping jobs on a gocron scheduler. Today that
// is pruning old delivery log rows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/shaharia-lab/verimail/internal/eventbus"
	"github.com/shaharia-lab/verimail/internal/storage"
)

const defaultPruneInterval = time.Hour

// EventPublisher allows the scheduler to emit events without depending on a
// concrete event bus implementation.
type EventPublisher interface {
	Publish(eventType string, payload map[string]string) bool
}

// EventDeliveryLogPruned fires after each prune that removed rows.
const EventDeliveryLogPruned = eventbus.DeliveryLogPruned

// Config holds the scheduler configuration.
type Config struct {
	Store  storage.DeliveryLogStore
	Logger *slog.Logger
	// Retention is how long rows are kept. Zero disables pruning.
	Retention time.Duration
	// Interval between prunes. Zero selects one hour.
	Interval time.Duration
	// EventPublisher is optional.
	EventPublisher EventPublisher
}

// Scheduler manages the retention job.
type Scheduler struct {
	cron   gocron.Scheduler
	cfg    Config
	jobID  uuid.UUID
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Scheduler.
func New(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, errors.New("scheduler: delivery log store is required")
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("creating gocron scheduler: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPruneInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		cron:   cron,
		cfg:    cfg,
		logger: logger.With("component", "scheduler"),
		now:    time.Now,
	}, nil
}

// Start schedules the retention job and starts the gocron scheduler. With a
// zero retention nothing is scheduled.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Retention <= 0 {
		s.logger.Info("delivery log retention disabled")
		return nil
	}

	job, err := s.cron.NewJob(
		gocron.DurationJob(s.cfg.Interval),
		gocron.NewTask(func() { s.prune(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("scheduling delivery log pruning: %w", err)
	}
	s.jobID = job.ID()

	s.cron.Start()
	s.logger.Info("scheduler started",
		"job_id", s.jobID, "retention", s.cfg.Retention.String(), "interval", s.cfg.Interval.String())
	return nil
}

// Stop shuts down the gocron scheduler.
func (s *Scheduler) Stop() error {
	return s.cron.Shutdown()
}
