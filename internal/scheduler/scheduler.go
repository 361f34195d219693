package scheduler

import (
	"context"
	"fmt"

	"imovel-portal/internal/config"
	syncer "imovel-portal/internal/sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler triggers the daily sync of all active sources. External cron
// hitting the /sync endpoint works too; this is the in-process option.
type Scheduler struct {
	cron         *cron.Cron
	orchestrator *syncer.Orchestrator
	sources      syncer.SourceProvider
	config       *config.Config
	isRunning    bool
}

// NewScheduler creates a new scheduler
func NewScheduler(orchestrator *syncer.Orchestrator, sources syncer.SourceProvider, cfg *config.Config) *Scheduler {
	return &Scheduler{
		cron:         cron.New(),
		orchestrator: orchestrator,
		sources:      sources,
		config:       cfg,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.Sync.DailyRunEnabled {
		logrus.Info("Scheduler: daily run is disabled in configuration")
		return nil
	}

	cronSpec := s.parseDailyRunTime(s.config.Sync.DailyRunTime)

	_, err := s.cron.AddFunc(cronSpec, func() {
		logrus.Info("Scheduler: starting daily sync job...")
		if err := s.runAll(); err != nil {
			logrus.Errorf("Scheduler: daily sync failed: %v", err)
		} else {
			logrus.Info("Scheduler: daily sync completed")
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.isRunning = true
	logrus.Infof("Scheduler: started with daily run at %s (cron: %s)", s.config.Sync.DailyRunTime, cronSpec)

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	if s.isRunning {
		s.cron.Stop()
		s.isRunning = false
		logrus.Info("Scheduler: stopped")
	}
}

// runAll syncs every active source once
func (s *Scheduler) runAll() error {
	results, err := s.orchestrator.SyncAll(context.Background(), s.sources)
	if err != nil {
		return err
	}

	for _, r := range results {
		logrus.Infof("Scheduler: source %s finished with status %s (processed=%d errors=%d deleted=%d)",
			r.SourceID, r.Status, r.TotalProcessed, r.TotalErrors, r.TotalDeleted)
	}
	return nil
}

// RunNow immediately executes the sync job (for manual trigger)
func (s *Scheduler) RunNow() error {
	logrus.Info("Scheduler: manual trigger - starting sync job...")
	return s.runAll()
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	// Default to 2:00 AM if parsing fails
	logrus.Warnf("Scheduler: failed to parse time '%s', using default 02:00", timeStr)
	return "0 2 * * *"
}
