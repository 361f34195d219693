package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"imovel-portal/internal/database"
	"imovel-portal/internal/models"
	syncer "imovel-portal/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// webhookSources resolves the source config a delivery authenticates as
type webhookSources interface {
	GetSourceByAPIKey(apiKey string) (*models.SourceConfig, error)
}

// recordUpserter is the slice of the orchestrator the webhook path needs
type recordUpserter interface {
	UpsertRecord(cfg *models.SourceConfig, raw map[string]interface{}) error
}

// deliveryRecorder persists per-delivery audit entries
type deliveryRecorder interface {
	RecordDelivery(delivery *models.WebhookDelivery) error
}

// WebhookHandler receives push-based ingestion from external sources.
// Deliveries reuse the orchestrator's upsert path but are logged
// individually instead of opening a full sync run.
type WebhookHandler struct {
	upserter   recordUpserter
	sources    webhookSources
	deliveries deliveryRecorder
}

// NewWebhookHandler creates a webhook ingestion handler
func NewWebhookHandler(orchestrator *syncer.Orchestrator, store *database.GormStore) *WebhookHandler {
	return &WebhookHandler{
		upserter:   orchestrator,
		sources:    store,
		deliveries: store,
	}
}

// Receive handles POST /webhooks/properties
func (h *WebhookHandler) Receive(c *gin.Context) {
	apiKey := c.GetHeader("x-api-key")
	if apiKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "missing api key"})
		return
	}

	cfg, err := h.sources.GetSourceByAPIKey(apiKey)
	if err == database.ErrNotFound {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unknown api key"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read body"})
		return
	}

	signature := c.GetHeader("x-webhook-signature")
	signed := false
	if cfg.WebhookSecret != "" && signature != "" {
		if !verifySignature(cfg.WebhookSecret, body, signature) {
			logrus.Warnf("Webhook: bad signature for source %s", cfg.SourceKey)
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
			return
		}
		signed = true
	}
	// A configured secret with no signature header is still accepted; the
	// delivery is just recorded as unsigned.

	records, err := parsePayload(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid JSON payload"})
		return
	}

	processed := 0
	errored := 0
	var errorMessages []string
	for _, record := range records {
		if upsertErr := h.upserter.UpsertRecord(cfg, record); upsertErr != nil {
			errored++
			errorMessages = append(errorMessages, upsertErr.Error())
			continue
		}
		processed++
	}

	h.logDelivery(cfg.ID, processed, errored, errorMessages, signed)

	c.JSON(http.StatusOK, gin.H{
		"success":       errored == 0,
		"processed":     processed,
		"errors":        errored,
		"errorMessages": errorMessages,
	})
}

// verifySignature checks "sha256=" + hex HMAC-SHA256(secret, body) using a
// constant-time comparison
func verifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// parsePayload accepts a single raw record or an array of them
func parsePayload(body []byte) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []map[string]interface{}
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var record map[string]interface{}
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, err
	}
	return []map[string]interface{}{record}, nil
}

func (h *WebhookHandler) logDelivery(sourceID string, processed, errored int, messages []string, signed bool) {
	status := models.DeliveryStatusProcessed
	if errored > 0 && processed == 0 {
		status = models.DeliveryStatusFailed
	} else if errored > 0 {
		status = models.DeliveryStatusPartial
	}

	delivery := models.WebhookDelivery{
		SourceConfigID: sourceID,
		Status:         status,
		Processed:      processed,
		Errors:         errored,
		ErrorMessages:  models.StringList(messages),
		Signed:         signed,
	}
	if err := h.deliveries.RecordDelivery(&delivery); err != nil {
		logrus.Errorf("Webhook: failed to record delivery for source %s: %v", sourceID, err)
	}
}
