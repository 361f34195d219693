package fetcher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"imovel-portal/internal/models"
	"imovel-portal/internal/ratelimit"

	"github.com/sirupsen/logrus"
)

// envelopeKeys are the wrapper keys a source may nest its record array under
var envelopeKeys = []string{"imoveis", "properties", "data"}

// Client retrieves raw records from external source APIs. One shared HTTP
// client; per-source timeout, rate limit and circuit breaker.
type Client struct {
	http    *http.Client
	limiter *ratelimit.SourceLimiter

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewClient creates a fetch client
func NewClient(limiter *ratelimit.SourceLimiter) *Client {
	return &Client{
		http:     &http.Client{},
		limiter:  limiter,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Fetch issues one GET to the source endpoint and normalizes the response
// envelope into a flat list of raw records. Non-2xx responses and transport
// errors surface as *FetchError; no retries happen here.
func (c *Client) Fetch(ctx context.Context, cfg *models.SourceConfig) ([]map[string]interface{}, error) {
	breaker := c.breakerFor(cfg.SourceKey)
	if !breaker.CanProceed() {
		return nil, &FetchError{SourceKey: cfg.SourceKey, Status: "circuit breaker open"}
	}

	if c.limiter != nil {
		c.limiter.Wait(cfg.SourceKey, cfg.RateLimitPerMinute)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Endpoint, nil)
	if err != nil {
		return nil, &FetchError{SourceKey: cfg.SourceKey, Status: err.Error()}
	}

	req.Header.Set("Accept", "application/json")
	applyAuth(req, cfg)
	for name, value := range cfg.Headers() {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		breaker.RecordFailure(0)
		return nil, &FetchError{SourceKey: cfg.SourceKey, Status: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		breaker.RecordFailure(resp.StatusCode)
		return nil, &FetchError{
			SourceKey:  cfg.SourceKey,
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		breaker.RecordFailure(0)
		return nil, &FetchError{SourceKey: cfg.SourceKey, Status: err.Error()}
	}

	breaker.RecordSuccess()

	records := NormalizeEnvelope(body)
	logrus.Infof("Fetcher: source %s returned %d records", cfg.SourceKey, len(records))
	return records, nil
}

// applyAuth sets the authorization header for the configured scheme
func applyAuth(req *http.Request, cfg *models.SourceConfig) {
	switch cfg.AuthType {
	case models.AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+cfg.AuthCredential)
	case models.AuthTypeAPIKey:
		req.Header.Set("X-API-Key", cfg.AuthCredential)
	case models.AuthTypeBasic:
		// Credential stored pre-encoded as "Basic xxxx" or raw base64
		if len(cfg.AuthCredential) > 6 && cfg.AuthCredential[:6] == "Basic " {
			req.Header.Set("Authorization", cfg.AuthCredential)
		} else {
			req.Header.Set("Authorization", "Basic "+cfg.AuthCredential)
		}
	}
}

// NormalizeEnvelope accepts the known response shapes (a bare array, or an
// object wrapping the array under "imoveis", "properties" or "data") and
// flattens them into a record list. An unrecognized shape degrades to zero
// records fetched, never an error.
func NormalizeEnvelope(body []byte) []map[string]interface{} {
	var asArray []map[string]interface{}
	if err := json.Unmarshal(body, &asArray); err == nil {
		return asArray
	}

	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(body, &asObject); err != nil {
		return []map[string]interface{}{}
	}

	for _, key := range envelopeKeys {
		raw, ok := asObject[key]
		if !ok {
			continue
		}
		var nested []map[string]interface{}
		if err := json.Unmarshal(raw, &nested); err == nil {
			return nested
		}
	}

	return []map[string]interface{}{}
}

// breakerFor returns the circuit breaker for a source, creating it on first use
func (c *Client) breakerFor(sourceKey string) *CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	breaker, ok := c.breakers[sourceKey]
	if !ok {
		breaker = NewCircuitBreaker(3, 10*time.Minute)
		c.breakers[sourceKey] = breaker
	}
	return breaker
}

// BreakerOpen reports whether a source's breaker is currently open
func (c *Client) BreakerOpen(sourceKey string) bool {
	return c.breakerFor(sourceKey).IsOpen()
}
