package database

import (
	"fmt"
	"time"

	"imovel-portal/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(host, port, user, password, dbname string) (*GormStore, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, err
	}

	// Test connection
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, err
	}

	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an existing gorm.DB instance
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB returns the underlying gorm.DB instance
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// InitSchema creates tables using GORM AutoMigrate
func (s *GormStore) InitSchema() error {
	return s.db.AutoMigrate(
		&models.Imovel{},
		&models.SourceConfig{},
		&models.SyncLog{},
		&models.WebhookDelivery{},
		&models.DeleteLog{},
	)
}

// FindByExternalID looks up a listing by the sync upsert key
func (s *GormStore) FindByExternalID(externalID, sourceAPI string) (*models.Imovel, error) {
	var imovel models.Imovel
	err := s.db.Where("external_id = ? AND source_api = ?", externalID, sourceAPI).First(&imovel).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &imovel, nil
}

// Insert creates a new listing
func (s *GormStore) Insert(imovel *models.Imovel) error {
	return s.db.Create(imovel).Error
}

// UpdateFields partially updates a listing; untouched columns are preserved
func (s *GormStore) UpdateFields(id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return s.db.Model(&models.Imovel{}).Where("id = ?", id).Updates(fields).Error
}

// ListStale returns active external listings for a source that were not seen
// in the current run and whose last sync predates cutoff
func (s *GormStore) ListStale(sourceAPI string, touchedIDs []uint, cutoff time.Time) ([]models.Imovel, error) {
	var stale []models.Imovel
	q := s.db.Where("source_api = ? AND active = ? AND last_sync_at < ?", sourceAPI, true, cutoff)
	if len(touchedIDs) > 0 {
		q = q.Where("id NOT IN ?", touchedIDs)
	}
	err := q.Find(&stale).Error
	return stale, err
}

// Deactivate marks listings inactive (soft deletion)
func (s *GormStore) Deactivate(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Model(&models.Imovel{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"active":      false,
			"sync_status": models.SyncStatusInactive,
		}).Error
}

// HardDelete physically removes listings
func (s *GormStore) HardDelete(ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.Where("id IN ?", ids).Delete(&models.Imovel{}).Error
}

// PropertyFilters narrows public listing queries
type PropertyFilters struct {
	Cidade        string
	Bairro        string
	Categoria     string
	TipoTransacao string
	MinValor      *float64
	MaxValor      *float64
	SourceAPI     string
	Limit         int
	Offset        int
	SortBy        string
}

// ListProperties retrieves active listings with optional filters
func (s *GormStore) ListProperties(f PropertyFilters) ([]models.Imovel, int64, error) {
	q := s.db.Model(&models.Imovel{}).Where("active = ?", true)

	if f.Cidade != "" {
		q = q.Where("cidade = ?", f.Cidade)
	}
	if f.Bairro != "" {
		q = q.Where("bairro = ?", f.Bairro)
	}
	if f.Categoria != "" {
		q = q.Where("categoria = ?", f.Categoria)
	}
	if f.TipoTransacao != "" {
		q = q.Where("tipo_transacao = ?", f.TipoTransacao)
	}
	if f.MinValor != nil {
		q = q.Where("valor >= ?", *f.MinValor)
	}
	if f.MaxValor != nil {
		q = q.Where("valor <= ?", *f.MaxValor)
	}
	if f.SourceAPI != "" {
		q = q.Where("source_api = ?", f.SourceAPI)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// NULL prices sort last regardless of direction (MySQL syntax)
	var orderClause string
	switch f.SortBy {
	case "valor_asc":
		orderClause = "CASE WHEN valor IS NULL THEN 1 ELSE 0 END, valor ASC"
	case "valor_desc":
		orderClause = "CASE WHEN valor IS NULL THEN 1 ELSE 0 END, valor DESC"
	case "area_desc":
		orderClause = "CASE WHEN area IS NULL THEN 1 ELSE 0 END, area DESC"
	default:
		orderClause = "created_at DESC"
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var properties []models.Imovel
	err := q.Order(orderClause).Limit(limit).Offset(f.Offset).Find(&properties).Error
	return properties, total, err
}

// GetPropertyByID retrieves a listing by primary key
func (s *GormStore) GetPropertyByID(id uint) (*models.Imovel, error) {
	var imovel models.Imovel
	err := s.db.Where("id = ?", id).First(&imovel).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &imovel, nil
}

// CountBySource groups active listing counts by source_api
func (s *GormStore) CountBySource() (map[string]int64, error) {
	var rows []struct {
		SourceAPI *string
		Count     int64
	}
	err := s.db.Model(&models.Imovel{}).
		Select("source_api, count(*) as count").
		Where("active = ?", true).
		Group("source_api").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		key := models.SourceInternal
		if r.SourceAPI != nil && *r.SourceAPI != "" {
			key = *r.SourceAPI
		}
		counts[key] = r.Count
	}
	return counts, nil
}
