// Package jobs runs the background maintenance tasks: periodic state
// flushes and the stale-probation prune sweep.
package jobs

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"tg_antispam_bot/internal/config"
	"tg_antispam_bot/internal/logging"
)

type stateMaintainer interface {
	Flush() error
	PruneStale(horizon time.Duration, now time.Time) int
}

// Scheduler owns the cron instance driving the maintenance tasks.
type Scheduler struct {
	cron          *cron.Cron
	state         stateMaintainer
	logger        *logrus.Entry
	flushInterval time.Duration
	joinRetention time.Duration
}

// NewScheduler constructs a Scheduler from the runtime configuration.
func NewScheduler(state stateMaintainer, cfg config.Config, logger *logrus.Entry) *Scheduler {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Scheduler{
		cron:          cron.New(),
		state:         state,
		logger:        logger,
		flushInterval: cfg.FlushInterval,
		joinRetention: cfg.JoinRetention,
	}
}

// Start registers and launches the background tasks.
func (s *Scheduler) Start() error {
	if s == nil || s.state == nil {
		return fmt.Errorf("scheduler is not initialized")
	}

	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.flushInterval), s.flush); err != nil {
		return fmt.Errorf("schedule flush: %w", err)
	}

	if s.joinRetention > 0 {
		if _, err := s.cron.AddFunc("@hourly", s.prune); err != nil {
			return fmt.Errorf("schedule prune sweep: %w", err)
		}
	}

	s.cron.Start()

	s.logger.WithFields(logging.Fields{
		"event":          "jobs_started",
		"flush_interval": s.flushInterval.String(),
		"join_retention": s.joinRetention.String(),
	}).Info("background jobs started")

	return nil
}

// Stop halts the cron instance and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	if s == nil || s.cron == nil {
		return
	}

	<-s.cron.Stop().Done()
	s.logger.WithField("event", "jobs_stopped").Info("background jobs stopped")
}

func (s *Scheduler) flush() {
	if err := s.state.Flush(); err != nil {
		s.logger.WithField("event", "flush_error").WithError(err).Error("periodic state flush failed")
	}
}

func (s *Scheduler) prune() {
	pruned := s.state.PruneStale(s.joinRetention, time.Now())
	if pruned > 0 {
		s.logger.WithFields(logging.Fields{
			"event":  "prune_sweep",
			"pruned": pruned,
		}).Info("pruned stale probation entries")
	}
}
