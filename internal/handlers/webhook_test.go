package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"imovel-portal/internal/database"
	"imovel-portal/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWebhookSources struct {
	configs map[string]*models.SourceConfig
}

func (f *fakeWebhookSources) GetSourceByAPIKey(apiKey string) (*models.SourceConfig, error) {
	if cfg, ok := f.configs[apiKey]; ok {
		return cfg, nil
	}
	return nil, database.ErrNotFound
}

type fakeUpserter struct {
	records []map[string]interface{}
	err     error
}

func (f *fakeUpserter) UpsertRecord(cfg *models.SourceConfig, raw map[string]interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, raw)
	return nil
}

type fakeDeliveries struct {
	recorded []*models.WebhookDelivery
}

func (f *fakeDeliveries) RecordDelivery(d *models.WebhookDelivery) error {
	f.recorded = append(f.recorded, d)
	return nil
}

func newWebhookTestHandler(secret string) (*WebhookHandler, *fakeUpserter, *fakeDeliveries) {
	upserter := &fakeUpserter{}
	deliveries := &fakeDeliveries{}
	handler := &WebhookHandler{
		upserter: upserter,
		sources: &fakeWebhookSources{configs: map[string]*models.SourceConfig{
			"valid-key": {
				ID:            "cfg-1",
				Name:          "Pushy Source",
				SourceKey:     "pushy",
				WebhookSecret: secret,
			},
		}},
		deliveries: deliveries,
	}
	return handler, upserter, deliveries
}

func postWebhook(t *testing.T, handler *WebhookHandler, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/properties", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	c.Request = req

	handler.Receive(c)
	return w
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookMissingAPIKey(t *testing.T) {
	handler, upserter, _ := newWebhookTestHandler("")

	w := postWebhook(t, handler, []byte(`{"id":"1"}`), nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, upserter.records)
}

func TestWebhookUnknownAPIKey(t *testing.T) {
	handler, upserter, _ := newWebhookTestHandler("")

	w := postWebhook(t, handler, []byte(`{"id":"1"}`), map[string]string{
		"x-api-key": "wrong-key",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, upserter.records)
}

func TestWebhookSingleRecord(t *testing.T) {
	handler, upserter, deliveries := newWebhookTestHandler("")

	w := postWebhook(t, handler, []byte(`{"id":"1","price":1000}`), map[string]string{
		"x-api-key": "valid-key",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, upserter.records, 1)
	assert.Equal(t, "1", upserter.records[0]["id"])

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, float64(1), resp["processed"])

	require.Len(t, deliveries.recorded, 1)
	assert.Equal(t, models.DeliveryStatusProcessed, deliveries.recorded[0].Status)
	assert.False(t, deliveries.recorded[0].Signed)
}

func TestWebhookArrayPayload(t *testing.T) {
	handler, upserter, _ := newWebhookTestHandler("")

	w := postWebhook(t, handler, []byte(`[{"id":"1"},{"id":"2"},{"id":"3"}]`), map[string]string{
		"x-api-key": "valid-key",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, upserter.records, 3)
}

func TestWebhookInvalidJSON(t *testing.T) {
	handler, _, _ := newWebhookTestHandler("")

	w := postWebhook(t, handler, []byte(`{broken`), map[string]string{
		"x-api-key": "valid-key",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookValidSignature(t *testing.T) {
	secret := "topsecret"
	handler, upserter, deliveries := newWebhookTestHandler(secret)

	body := []byte(`{"id":"42"}`)
	w := postWebhook(t, handler, body, map[string]string{
		"x-api-key":           "valid-key",
		"x-webhook-signature": sign(secret, body),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, upserter.records, 1)
	require.Len(t, deliveries.recorded, 1)
	assert.True(t, deliveries.recorded[0].Signed)
}

func TestWebhookBadSignature(t *testing.T) {
	handler, upserter, _ := newWebhookTestHandler("topsecret")

	body := []byte(`{"id":"42"}`)
	w := postWebhook(t, handler, body, map[string]string{
		"x-api-key":           "valid-key",
		"x-webhook-signature": "sha256=" + hex.EncodeToString(make([]byte, 32)),
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, upserter.records)
}

func TestWebhookMissingSignatureStillAccepted(t *testing.T) {
	handler, upserter, deliveries := newWebhookTestHandler("topsecret")

	w := postWebhook(t, handler, []byte(`{"id":"42"}`), map[string]string{
		"x-api-key": "valid-key",
	})

	// A configured secret without a signature header is accepted but the
	// delivery is recorded as unsigned
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, upserter.records, 1)
	require.Len(t, deliveries.recorded, 1)
	assert.False(t, deliveries.recorded[0].Signed)
}

func TestWebhookUpsertFailures(t *testing.T) {
	handler, upserter, deliveries := newWebhookTestHandler("")
	upserter.err = errors.New("store unavailable")

	w := postWebhook(t, handler, []byte(`[{"id":"1"},{"id":"2"}]`), map[string]string{
		"x-api-key": "valid-key",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["success"])
	assert.Equal(t, float64(2), resp["errors"])

	require.Len(t, deliveries.recorded, 1)
	assert.Equal(t, models.DeliveryStatusFailed, deliveries.recorded[0].Status)
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.True(t, verifySignature("s3cret", body, sign("s3cret", body)))
	assert.False(t, verifySignature("s3cret", body, sign("other", body)))
	assert.False(t, verifySignature("s3cret", body, "not-even-prefixed"))
}
