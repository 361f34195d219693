package database

import (
	"errors"
	"strings"
	"time"

	"imovel-portal/internal/models"
)

// ErrNotFound is returned when a lookup matches no record
var ErrNotFound = errors.New("record not found")

// PropertyStore is the record-store surface the sync pipeline needs. The
// orchestrator receives it explicitly so tests can swap in an in-memory
// fake.
type PropertyStore interface {
	// FindByExternalID looks up the listing for an (external_id, source_api)
	// pair; ErrNotFound when absent.
	FindByExternalID(externalID, sourceAPI string) (*models.Imovel, error)

	// Insert creates a new listing. A uniqueness violation on the upsert key
	// surfaces as an error satisfying IsDuplicateKey.
	Insert(imovel *models.Imovel) error

	// UpdateFields partially updates a listing by primary key. Columns not
	// present in fields keep their stored values.
	UpdateFields(id uint, fields map[string]interface{}) error

	// ListStale returns active external listings for a source that were not
	// touched in the current run and whose last sync predates cutoff.
	ListStale(sourceAPI string, touchedIDs []uint, cutoff time.Time) ([]models.Imovel, error)

	// Deactivate soft-deletes listings: active = false, sync_status = inactive.
	Deactivate(ids []uint) error

	// HardDelete physically removes listings.
	HardDelete(ids []uint) error
}

// IsDuplicateKey reports whether err is a unique-constraint violation. The
// store-level unique index on (external_id, source_api) makes a racing
// insert fail here, and the orchestrator downgrades it to an update.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || // MySQL 1062
		strings.Contains(msg, "duplicate key") || // PostgreSQL
		strings.Contains(msg, "UNIQUE constraint")
}
