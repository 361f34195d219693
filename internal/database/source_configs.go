package database

import (
	"imovel-portal/internal/models"

	"gorm.io/gorm"
)

// ActiveSources lists the source configs the sync pipeline should run.
// Satisfies the orchestrator's SourceProvider.
func (s *GormStore) ActiveSources() ([]models.SourceConfig, error) {
	var configs []models.SourceConfig
	err := s.db.Where("active = ?", true).Order("name ASC").Find(&configs).Error
	return configs, err
}

// ListSources returns all source configs
func (s *GormStore) ListSources() ([]models.SourceConfig, error) {
	var configs []models.SourceConfig
	err := s.db.Order("name ASC").Find(&configs).Error
	return configs, err
}

// GetSource retrieves a source config by id
func (s *GormStore) GetSource(id string) (*models.SourceConfig, error) {
	var cfg models.SourceConfig
	err := s.db.Where("id = ?", id).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetSourceByAPIKey matches an inbound webhook key to its active source
func (s *GormStore) GetSourceByAPIKey(apiKey string) (*models.SourceConfig, error) {
	if apiKey == "" {
		return nil, ErrNotFound
	}
	var cfg models.SourceConfig
	err := s.db.Where("auth_credential = ? AND active = ?", apiKey, true).First(&cfg).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CreateSource persists a new source config
func (s *GormStore) CreateSource(cfg *models.SourceConfig) error {
	return s.db.Create(cfg).Error
}

// UpdateSource saves changes to a source config
func (s *GormStore) UpdateSource(cfg *models.SourceConfig) error {
	return s.db.Save(cfg).Error
}

// DeleteSource removes a source config. Its listings and run history stay.
func (s *GormStore) DeleteSource(id string) error {
	return s.db.Where("id = ?", id).Delete(&models.SourceConfig{}).Error
}
