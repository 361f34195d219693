package models

import "time"

// DeleteLog represents a record of physically deleted listings
type DeleteLog struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID uint      `gorm:"not null;index" json:"property_id"`
	SourceAPI  string    `gorm:"type:varchar(50)" json:"source_api,omitempty"`
	ExternalID string    `gorm:"type:varchar(255)" json:"external_id,omitempty"`
	Cidade     string    `gorm:"type:varchar(100)" json:"cidade,omitempty"`
	RemovedAt  time.Time `json:"removed_at"`
	DeletedAt  time.Time `gorm:"not null;autoCreateTime;index" json:"deleted_at"`
	Reason     string    `gorm:"type:varchar(50);not null" json:"reason"`
}

// TableName specifies the table name
func (DeleteLog) TableName() string {
	return "delete_logs"
}

// DeleteReason constants
const (
	DeleteReasonExpired   = "retention_expired"
	DeleteReasonStaleSync = "stale_sync"
	DeleteReasonManual    = "manual_deletion"
)
