package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SourceInternal marks listings created directly by users rather than by the
// sync pipeline. The pipeline never touches internal listings.
const SourceInternal = "internal"

// SyncStatus values for externally sourced listings
const (
	SyncStatusActive   = "active"
	SyncStatusInactive = "inactive"
	SyncStatusError    = "error"
)

// StringList is a JSON-encoded list of strings stored in a text column
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	return string(b), err
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return fmt.Errorf("unsupported type for StringList: %T", value)
}

// Imovel is one real-estate listing, either created internally or ingested
// from an external source API.
type Imovel struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	// Dados do imóvel
	Categoria     string     `gorm:"type:varchar(20);index" json:"categoria,omitempty"`      // residencial, comercial, rural
	TipoTransacao string     `gorm:"type:varchar(20);index" json:"tipo_transacao,omitempty"` // venda, aluguel
	Subtipo       string     `gorm:"type:varchar(50)" json:"subtipo,omitempty"`
	Cidade        string     `gorm:"type:varchar(100);index" json:"cidade,omitempty"`
	Bairro        string     `gorm:"type:varchar(100);index" json:"bairro,omitempty"`
	Endereco      string     `gorm:"type:text" json:"endereco,omitempty"`
	Valor         *float64   `gorm:"type:decimal(14,2);index" json:"valor,omitempty"`
	Area          *float64   `gorm:"type:decimal(10,2)" json:"area,omitempty"`
	Descricao     string     `gorm:"type:text" json:"descricao,omitempty"`
	Contato       string     `gorm:"type:varchar(30)" json:"contato,omitempty"`
	SponsorID     *uint      `gorm:"index" json:"sponsor_id,omitempty"`
	Images        StringList `gorm:"type:text" json:"images,omitempty"`
	Latitude      *float64   `gorm:"type:decimal(10,7)" json:"latitude,omitempty"`
	Longitude     *float64   `gorm:"type:decimal(10,7)" json:"longitude,omitempty"`

	Active bool `gorm:"not null;default:true;index" json:"active"`

	// Proveniência (only set on synced records)
	// (external_id, source_api) is the upsert key; internal listings keep
	// both NULL so the unique index never collides between them.
	SourceAPI         *string    `gorm:"type:varchar(50);uniqueIndex:idx_external_source" json:"source_api,omitempty"`
	ExternalID        *string    `gorm:"type:varchar(255);uniqueIndex:idx_external_source" json:"external_id,omitempty"`
	SourceDisplayName string     `gorm:"type:varchar(100)" json:"source_display_name,omitempty"`
	LastSyncAt        *time.Time `gorm:"index" json:"last_sync_at,omitempty"`
	SyncStatus        string     `gorm:"type:varchar(20)" json:"sync_status,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_created_at,sort:desc" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (Imovel) TableName() string {
	return "properties"
}

// IsExternal reports whether the listing was ingested from an external source
func (i *Imovel) IsExternal() bool {
	return i.SourceAPI != nil && *i.SourceAPI != "" && *i.SourceAPI != SourceInternal
}

// MarkInactive deactivates a listing dropped by its source feed
func (i *Imovel) MarkInactive() {
	i.Active = false
	i.SyncStatus = SyncStatusInactive
}

// syncColumns are the columns the sync pipeline may write during a partial
// update. Anything else in a transformed record is dropped before persisting.
var syncColumns = map[string]bool{
	"categoria":           true,
	"tipo_transacao":      true,
	"subtipo":             true,
	"cidade":              true,
	"bairro":              true,
	"endereco":            true,
	"valor":               true,
	"area":                true,
	"descricao":           true,
	"contato":             true,
	"images":              true,
	"latitude":            true,
	"longitude":           true,
	"source_api":          true,
	"external_id":         true,
	"source_display_name": true,
	"last_sync_at":        true,
	"sync_status":         true,
}

// FilterSyncColumns keeps only the keys the pipeline is allowed to persist
func FilterSyncColumns(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	for k, v := range record {
		if syncColumns[k] {
			out[k] = v
		}
	}
	return out
}
