package database

import "imovel-portal/internal/models"

// RecordDelivery persists one inbound webhook delivery
func (s *GormStore) RecordDelivery(delivery *models.WebhookDelivery) error {
	return s.db.Create(delivery).Error
}

// RecentDeliveries returns the latest webhook deliveries, newest first
func (s *GormStore) RecentDeliveries(limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var deliveries []models.WebhookDelivery
	err := s.db.Order("received_at DESC").Limit(limit).Find(&deliveries).Error
	return deliveries, err
}
