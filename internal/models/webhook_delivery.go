package models

import "time"

// Webhook delivery statuses
const (
	DeliveryStatusProcessed = "processed"
	DeliveryStatusPartial   = "partial"
	DeliveryStatusFailed    = "failed"
)

// WebhookDelivery records one inbound webhook POST. Push deliveries are
// logged individually instead of opening a full SyncLog run.
type WebhookDelivery struct {
	ID             uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SourceConfigID string     `gorm:"type:varchar(36);not null;index" json:"source_config_id"`
	Status         string     `gorm:"type:varchar(20);not null" json:"status"`
	Processed      int        `gorm:"default:0" json:"processed"`
	Errors         int        `gorm:"default:0" json:"errors"`
	ErrorMessages  StringList `gorm:"type:text" json:"error_messages,omitempty"`
	Signed         bool       `gorm:"not null;default:false" json:"signed"`
	ReceivedAt     time.Time  `gorm:"not null;autoCreateTime;index" json:"received_at"`
}

// TableName specifies the table name
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
