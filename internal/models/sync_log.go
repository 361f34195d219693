package models

import "time"

// SyncLog statuses. A run starts as running and transitions exactly once to
// one of the terminal states.
const (
	SyncLogStatusRunning = "running"
	SyncLogStatusSuccess = "success"
	SyncLogStatusWarning = "warning"
	SyncLogStatusError   = "error"
)

// SyncLog records one execution of the sync pipeline against one source
type SyncLog struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceConfigID string     `gorm:"type:varchar(36);not null;index" json:"source_config_id"`
	StartedAt      time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         string     `gorm:"type:varchar(20);not null;default:'running';index" json:"status"`

	TotalProcessed  int        `gorm:"default:0" json:"total_processed"`
	TotalErrors     int        `gorm:"default:0" json:"total_errors"`
	ErrorMessages   StringList `gorm:"type:text" json:"error_messages,omitempty"`
	TotalDeleted    int        `gorm:"default:0" json:"total_deleted"`
	DeletedIDs      StringList `gorm:"type:text" json:"deleted_ids,omitempty"`
	DurationSeconds float64    `gorm:"type:decimal(10,3)" json:"duration_seconds"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name
func (SyncLog) TableName() string {
	return "sync_logs"
}

// IsTerminal reports whether the run has already been finalized
func (l *SyncLog) IsTerminal() bool {
	return l.Status != SyncLogStatusRunning
}
