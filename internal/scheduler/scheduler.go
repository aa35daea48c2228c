// Package scheduler runs the periodic saved-places refresh so the enriched
// view stays warm between user actions.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/JorgeF123/weather-dashboard/internal/ledger"
)

// Scheduler wraps the cron runner for the ledger refresh job.
type Scheduler struct {
	cron   *gocron.Scheduler
	ledger *ledger.Ledger
	logger *zap.Logger
}

func New(led *ledger.Ledger, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   gocron.NewScheduler(time.UTC),
		ledger: led,
		logger: logger,
	}
}

// Start schedules the refresh at the given interval and runs it once
// immediately. Refresh failures are logged, never fatal.
func (s *Scheduler) Start(interval time.Duration) error {
	_, err := s.cron.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if _, err := s.ledger.Reload(ctx); err != nil {
			s.logger.Warn("scheduled ledger refresh failed", zap.Error(err))
			return
		}
		s.logger.Debug("scheduled ledger refresh complete")
	})
	if err != nil {
		return err
	}
	s.cron.StartAsync()
	return nil
}

// Stop halts the runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
