package cleanup

import (
	"fmt"
	"time"

	"imovel-portal/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Service handles physical deletion of listings that stayed deactivated past
// the retention window, and pruning of old sync run logs. Sync runs only
// soft-deactivate (unless a source opts into hard deletion); this service is
// the separate manual retention path.
type Service struct {
	db *gorm.DB
}

// NewService creates a new cleanup service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Config holds configuration for cleanup operations
type Config struct {
	RetentionDays    int  // Days a deactivated listing is kept before physical deletion
	SyncLogRetention int  // Days of sync run history to keep (0 = keep forever)
	MaxDeletionCount int  // Maximum number of listings to delete in one run (safety limit)
	DryRun           bool // If true, only log what would be deleted
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RetentionDays:    90,
		SyncLogRetention: 180,
		MaxDeletionCount: 10000,
		DryRun:           false,
	}
}

// Result holds the result of a cleanup operation
type Result struct {
	TargetCount    int       `json:"target_count"`
	DeletedCount   int       `json:"deleted_count"`
	ErrorCount     int       `json:"error_count"`
	PrunedSyncLogs int64     `json:"pruned_sync_logs"`
	DryRun         bool      `json:"dry_run"`
	ExecutedAt     time.Time `json:"executed_at"`
	DeletedIDs     []uint    `json:"deleted_ids,omitempty"`
	Errors         []string  `json:"errors,omitempty"`
}

// FindExpired finds deactivated listings eligible for physical deletion:
// inactive, synced from an external source, untouched for retentionDays.
func (s *Service) FindExpired(retentionDays int) ([]models.Imovel, error) {
	var listings []models.Imovel

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	err := s.db.Where("active = ? AND source_api IS NOT NULL AND source_api != ? AND updated_at < ?",
		false, models.SourceInternal, cutoff).Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find expired listings: %w", err)
	}

	logrus.Infof("Cleanup: found %d listings expired before %s", len(listings), cutoff.Format("2006-01-02"))
	return listings, nil
}

// Run performs physical deletion plus sync log pruning
func (s *Service) Run(cfg Config) (*Result, error) {
	result := &Result{
		DryRun:     cfg.DryRun,
		ExecutedAt: time.Now(),
	}

	expired, err := s.FindExpired(cfg.RetentionDays)
	if err != nil {
		return nil, err
	}
	result.TargetCount = len(expired)

	// Safety check: abort if too many listings would be deleted
	if result.TargetCount > cfg.MaxDeletionCount {
		return nil, fmt.Errorf("safety check failed: %d listings exceed max deletion limit of %d",
			result.TargetCount, cfg.MaxDeletionCount)
	}

	for _, listing := range expired {
		if cfg.DryRun {
			logrus.Infof("Cleanup: [DRY-RUN] would delete listing %d (cidade: %s)", listing.ID, listing.Cidade)
			result.DeletedIDs = append(result.DeletedIDs, listing.ID)
			result.DeletedCount++
			continue
		}

		if err := s.deleteWithLog(&listing); err != nil {
			msg := fmt.Sprintf("failed to delete listing %d: %v", listing.ID, err)
			logrus.Errorf("Cleanup: %s", msg)
			result.Errors = append(result.Errors, msg)
			result.ErrorCount++
			continue
		}

		result.DeletedIDs = append(result.DeletedIDs, listing.ID)
		result.DeletedCount++
	}

	if cfg.SyncLogRetention > 0 && !cfg.DryRun {
		cutoff := time.Now().AddDate(0, 0, -cfg.SyncLogRetention)
		pruned := s.db.Where("started_at < ?", cutoff).Delete(&models.SyncLog{})
		if pruned.Error != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("sync log pruning failed: %v", pruned.Error))
			result.ErrorCount++
		} else {
			result.PrunedSyncLogs = pruned.RowsAffected
		}
	}

	logrus.Infof("Cleanup: completed, %d/%d listings deleted, %d sync logs pruned, %d errors (dry-run: %v)",
		result.DeletedCount, result.TargetCount, result.PrunedSyncLogs, result.ErrorCount, cfg.DryRun)

	return result, nil
}

// deleteWithLog removes one listing and records a DeleteLog row atomically
func (s *Service) deleteWithLog(listing *models.Imovel) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		entry := models.DeleteLog{
			PropertyID: listing.ID,
			Cidade:     listing.Cidade,
			RemovedAt:  listing.UpdatedAt,
			Reason:     models.DeleteReasonExpired,
		}
		if listing.SourceAPI != nil {
			entry.SourceAPI = *listing.SourceAPI
		}
		if listing.ExternalID != nil {
			entry.ExternalID = *listing.ExternalID
		}

		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Delete(listing).Error
	})
}

// Stats returns statistics about deleted listings
func (s *Service) Stats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalDeleted int64
	if err := s.db.Model(&models.DeleteLog{}).Count(&totalDeleted).Error; err != nil {
		return nil, err
	}
	stats["total_deleted"] = totalDeleted

	var reasonCounts []struct {
		Reason string
		Count  int64
	}
	if err := s.db.Model(&models.DeleteLog{}).
		Select("reason, count(*) as count").
		Group("reason").
		Scan(&reasonCounts).Error; err != nil {
		return nil, err
	}
	reasonMap := make(map[string]int64)
	for _, rc := range reasonCounts {
		reasonMap[rc.Reason] = rc.Count
	}
	stats["by_reason"] = reasonMap

	var currentInactive int64
	if err := s.db.Model(&models.Imovel{}).
		Where("active = ? AND source_api IS NOT NULL", false).
		Count(&currentInactive).Error; err != nil {
		return nil, err
	}
	stats["currently_inactive"] = currentInactive

	return stats, nil
}

// RecentDeleteLogs returns recent delete log entries
func (s *Service) RecentDeleteLogs(limit int) ([]models.DeleteLog, error) {
	var logs []models.DeleteLog
	err := s.db.Order("deleted_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
