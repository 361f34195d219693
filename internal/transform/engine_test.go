package transform

import (
	"strings"
	"testing"
	"time"

	"imovel-portal/internal/mapping"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine(mapping.NewRegistry())
	e.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestTransformDemoRecord(t *testing.T) {
	e := newTestEngine(t)

	raw := map[string]interface{}{
		"id":    "A1",
		"price": "250.000,00",
		"city":  "Cuiaba",
	}

	out := e.Transform(raw, "demo_api")

	assert.Equal(t, "demo_api", out["source_api"])
	assert.Equal(t, "A1", out["external_id"])
	assert.Equal(t, float64(250000), out["valor"])
	assert.Equal(t, "Cuiaba", out["cidade"])
	assert.Equal(t, "active", out["sync_status"])
	assert.Equal(t, "Demo Api", out["source_display_name"])
	assert.Equal(t, time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC), out["last_sync_at"])
}

func TestTransformStampsProvenanceWithoutMapping(t *testing.T) {
	e := newTestEngine(t)

	raw := map[string]interface{}{"id": "X9", "whatever": "value"}
	out := e.Transform(raw, "unmapped_source")

	// Unmapped sources pass fields through but still get provenance
	assert.Equal(t, "value", out["whatever"])
	assert.Equal(t, "unmapped_source", out["source_api"])
	assert.Equal(t, "X9", out["external_id"])
	assert.Equal(t, "active", out["sync_status"])
}

func TestTransformSkipsFailedField(t *testing.T) {
	e := newTestEngine(t)

	raw := map[string]interface{}{
		"id":    "A2",
		"price": "not a number",
		"city":  "Sinop",
	}

	out := e.Transform(raw, "demo_api")

	// The bad price is dropped, the rest of the record survives
	_, hasValor := out["valor"]
	assert.False(t, hasValor)
	assert.Equal(t, "Sinop", out["cidade"])
	assert.Equal(t, "A2", out["external_id"])
}

func TestTransformSkipsAbsentFields(t *testing.T) {
	e := newTestEngine(t)

	out := e.Transform(map[string]interface{}{"id": "A3"}, "demo_api")

	_, hasCidade := out["cidade"]
	assert.False(t, hasCidade)
}

func TestExternalIDDerivationOrder(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name string
		raw  map[string]interface{}
		want string
	}{
		{"id wins", map[string]interface{}{"id": "1", "external_id": "2", "codigo": "3"}, "1"},
		{"external_id next", map[string]interface{}{"external_id": "2", "codigo": "3"}, "2"},
		{"codigo next", map[string]interface{}{"codigo": "3", "ref": "4"}, "3"},
		{"ref next", map[string]interface{}{"ref": "4", "reference": "5"}, "4"},
		{"reference last", map[string]interface{}{"reference": "5"}, "5"},
		{"numeric id stringified", map[string]interface{}{"id": float64(42)}, "42"},
		{"nil id skipped", map[string]interface{}{"id": nil, "codigo": "3"}, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := e.Transform(tt.raw, "demo_api")
			assert.Equal(t, tt.want, out["external_id"])
		})
	}
}

func TestExternalIDSynthesized(t *testing.T) {
	e := newTestEngine(t)

	out := e.Transform(map[string]interface{}{"city": "Cuiaba"}, "demo_api")

	id, ok := out["external_id"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(id, "gen_"), "synthesized id %q should carry the gen_ prefix", id)

	// The record still passes provenance validation
	assert.True(t, Validate(out))
}

func TestValidate(t *testing.T) {
	assert.True(t, Validate(map[string]interface{}{"source_api": "a", "external_id": "b"}))
	assert.False(t, Validate(map[string]interface{}{"source_api": "", "external_id": "b"}))
	assert.False(t, Validate(map[string]interface{}{"source_api": "a"}))
	assert.False(t, Validate(map[string]interface{}{}))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Demo Api", displayName("demo_api"))
	assert.Equal(t, "Acme Imoveis", displayName("acme-imoveis"))
	assert.Equal(t, "Single", displayName("single"))
}
