package synclog

import (
	"fmt"
	"time"

	"imovel-portal/internal/models"

	"gorm.io/gorm"
)

// Store appends and queries sync run history
type Store struct {
	db *gorm.DB
}

// NewStore creates a sync log store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// StartRun creates the run's log entry in running state
func (s *Store) StartRun(sourceConfigID string, startedAt time.Time) (*models.SyncLog, error) {
	entry := &models.SyncLog{
		SourceConfigID: sourceConfigID,
		StartedAt:      startedAt,
		Status:         models.SyncLogStatusRunning,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// RunOutcome is the terminal state written once when a run ends
type RunOutcome struct {
	Status        string
	Processed     int
	Errors        int
	ErrorMessages []string
	Deleted       int
	DeletedIDs    []string
	Duration      time.Duration
}

// Finalize transitions the run to its terminal state. A log that already
// reached a terminal state is never re-opened.
func (s *Store) Finalize(entry *models.SyncLog, outcome RunOutcome) error {
	if entry.IsTerminal() {
		return fmt.Errorf("sync log %d already finalized with status %s", entry.ID, entry.Status)
	}

	now := time.Now()
	entry.Status = outcome.Status
	entry.FinishedAt = &now
	entry.TotalProcessed = outcome.Processed
	entry.TotalErrors = outcome.Errors
	entry.ErrorMessages = models.StringList(outcome.ErrorMessages)
	entry.TotalDeleted = outcome.Deleted
	entry.DeletedIDs = models.StringList(outcome.DeletedIDs)
	entry.DurationSeconds = outcome.Duration.Seconds()

	return s.db.Save(entry).Error
}

// RecentRuns returns the latest runs across all sources
func (s *Store) RecentRuns(limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.SyncLog
	err := s.db.Order("started_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// RunsForSource returns the latest runs for one source
func (s *Store) RunsForSource(sourceConfigID string, limit int) ([]models.SyncLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []models.SyncLog
	err := s.db.Where("source_config_id = ?", sourceConfigID).
		Order("started_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}

// SourceStats summarizes run history for one source
type SourceStats struct {
	SourceConfigID string     `json:"source_config_id"`
	TotalRuns      int64      `json:"total_runs"`
	FailedRuns     int64      `json:"failed_runs"`
	TotalProcessed int64      `json:"total_processed"`
	TotalErrors    int64      `json:"total_errors"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	LastSuccessAt  *time.Time `json:"last_success_at,omitempty"`
	LastStatus     string     `json:"last_status,omitempty"`
}

// StatsForSource aggregates run history for one source
func (s *Store) StatsForSource(sourceConfigID string) (*SourceStats, error) {
	stats := &SourceStats{SourceConfigID: sourceConfigID}

	base := s.db.Model(&models.SyncLog{}).Where("source_config_id = ?", sourceConfigID)
	if err := base.Count(&stats.TotalRuns).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&models.SyncLog{}).
		Where("source_config_id = ? AND status = ?", sourceConfigID, models.SyncLogStatusError).
		Count(&stats.FailedRuns).Error; err != nil {
		return nil, err
	}

	var totals struct {
		Processed int64
		Errors    int64
	}
	if err := s.db.Model(&models.SyncLog{}).
		Select("COALESCE(SUM(total_processed),0) as processed, COALESCE(SUM(total_errors),0) as errors").
		Where("source_config_id = ?", sourceConfigID).
		Scan(&totals).Error; err != nil {
		return nil, err
	}
	stats.TotalProcessed = totals.Processed
	stats.TotalErrors = totals.Errors

	var last models.SyncLog
	err := s.db.Where("source_config_id = ?", sourceConfigID).
		Order("started_at DESC").First(&last).Error
	if err == nil {
		stats.LastRunAt = &last.StartedAt
		stats.LastStatus = last.Status
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	var lastOK models.SyncLog
	err = s.db.Where("source_config_id = ? AND status = ?", sourceConfigID, models.SyncLogStatusSuccess).
		Order("started_at DESC").First(&lastOK).Error
	if err == nil {
		stats.LastSuccessAt = &lastOK.StartedAt
	} else if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	return stats, nil
}

// PruneOlderThan removes run history past the retention window. Sync runs
// never delete their own logs; this is the manual retention path.
func (s *Store) PruneOlderThan(cutoff time.Time) (int64, error) {
	result := s.db.Where("started_at < ?", cutoff).Delete(&models.SyncLog{})
	return result.RowsAffected, result.Error
}
