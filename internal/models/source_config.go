package models

import (
	"encoding/json"
	"time"
)

// AuthType values for external source APIs
const (
	AuthTypeNone   = "none"
	AuthTypeBearer = "bearer"
	AuthTypeAPIKey = "api-key"
	AuthTypeBasic  = "basic"
)

// Deletion strategies for records that disappear from a source feed
const (
	DeleteStrategySoft = "soft" // mark active = false
	DeleteStrategyHard = "hard" // physically delete
)

// SourceConfig describes one external real-estate API integration.
// Created and edited by operators through the admin API; the sync pipeline
// only ever reads it.
type SourceConfig struct {
	ID        string `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string `gorm:"type:varchar(100);not null" json:"name" validate:"required"`
	SourceKey string `gorm:"type:varchar(50);not null;uniqueIndex" json:"source_key" validate:"required"`
	Endpoint  string `gorm:"type:varchar(500);not null" json:"endpoint" validate:"required,url"`

	AuthType       string `gorm:"type:varchar(20);not null;default:'none'" json:"auth_type" validate:"oneof=none bearer api-key basic"`
	AuthCredential string `gorm:"type:text" json:"auth_credential,omitempty"`
	ExtraHeaders   string `gorm:"type:text" json:"extra_headers,omitempty"` // JSON object, header name -> value

	RateLimitPerMinute int  `gorm:"default:0" json:"rate_limit_per_minute"` // 0 = unlimited
	TimeoutSeconds     int  `gorm:"default:30" json:"timeout_seconds"`
	Active             bool `gorm:"not null;default:true;index" json:"active"`

	// Stale-record cleanup policy
	DeleteEnabled        bool   `gorm:"not null;default:false" json:"delete_enabled"`
	DeleteStrategy       string `gorm:"type:varchar(10);default:'soft'" json:"delete_strategy" validate:"omitempty,oneof=soft hard"`
	KeepDaysBeforeDelete int    `gorm:"default:30" json:"keep_days_before_delete"`

	WebhookSecret string `gorm:"type:varchar(255)" json:"webhook_secret,omitempty"`

	// Field mapping as JSON:
	// {"field_map": {"price": "valor"}, "transforms": {"valor": "currency"}}
	FieldMapping string `gorm:"type:text" json:"field_mapping,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (SourceConfig) TableName() string {
	return "source_configs"
}

// Timeout returns the fetch timeout as a duration
func (s *SourceConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Headers decodes the extra headers JSON; malformed JSON yields no headers
func (s *SourceConfig) Headers() map[string]string {
	if s.ExtraHeaders == "" {
		return nil
	}
	var headers map[string]string
	if err := json.Unmarshal([]byte(s.ExtraHeaders), &headers); err != nil {
		return nil
	}
	return headers
}
