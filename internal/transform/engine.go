package transform

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"imovel-portal/internal/mapping"

	"github.com/sirupsen/logrus"
)

// idFields are tried in order when deriving the external id from a raw record
var idFields = []string{"id", "external_id", "codigo", "ref", "reference"}

// Engine maps raw external records into partial internal listing records.
// The registry is injected so the engine stays testable without global state.
type Engine struct {
	registry *mapping.Registry
	now      func() time.Time
}

// NewEngine creates a transform engine backed by the given registry
func NewEngine(registry *mapping.Registry) *Engine {
	return &Engine{registry: registry, now: time.Now}
}

// Transform converts one raw record into a partial internal record keyed by
// internal field names. Provenance fields are always stamped, even when the
// registry has no mapping for the source. Required-field validation is the
// orchestrator's job, not ours.
func (e *Engine) Transform(raw map[string]interface{}, sourceKey string) map[string]interface{} {
	out := make(map[string]interface{})

	m, ok := e.registry.Lookup(sourceKey)
	if !ok {
		// Recoverable: pass the raw record through unmodified
		logrus.Warnf("Transform: no mapping registered for source %s, passing record through", sourceKey)
		for k, v := range raw {
			out[k] = v
		}
	} else {
		for externalField, internalField := range m.FieldMap {
			value, present := raw[externalField]
			if !present {
				continue
			}
			if kind, hasTransform := m.Transforms[internalField]; hasTransform {
				transformed, err := mapping.Apply(kind, value)
				if err != nil {
					// A failed transform skips the field, not the record
					logrus.Warnf("Transform: %s transform failed for field %s (source %s): %v",
						kind, externalField, sourceKey, err)
					continue
				}
				value = transformed
			}
			out[internalField] = value
		}
	}

	// Provenance is stamped regardless of mapping success
	out["source_api"] = sourceKey
	out["external_id"] = e.deriveExternalID(raw)
	out["source_display_name"] = displayName(sourceKey)
	out["last_sync_at"] = e.now()
	out["sync_status"] = "active"

	return out
}

// Validate reports whether a transformed record carries the minimal
// provenance needed for an upsert. Business fields are deliberately not
// checked here; bad data surfaces later as a quality concern, not an
// ingestion failure.
func Validate(record map[string]interface{}) bool {
	return nonEmptyString(record["source_api"]) && nonEmptyString(record["external_id"])
}

func nonEmptyString(v interface{}) bool {
	s, ok := v.(string)
	return ok && s != ""
}

// deriveExternalID picks the first id-like field present, stringified.
// When a source exposes nothing id-like, a value is synthesized from the
// clock plus a hash of the serialized record. That id is not stable across
// repeated fetches of the same logical record, which can duplicate listings
// for such sources over time.
func (e *Engine) deriveExternalID(raw map[string]interface{}) string {
	for _, field := range idFields {
		if v, ok := raw[field]; ok && v != nil {
			s := stringify(v)
			if s != "" {
				return s
			}
		}
	}

	h := fnv.New32a()
	if b, err := json.Marshal(raw); err == nil {
		h.Write(b)
	}
	return fmt.Sprintf("gen_%d_%x", e.now().UnixMilli(), h.Sum32())
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return fmt.Sprintf("%v", s)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// displayName builds a human label from a source key ("demo_api" -> "Demo Api")
func displayName(sourceKey string) string {
	parts := strings.FieldsFunc(sourceKey, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	if len(parts) == 0 {
		return sourceKey
	}
	return strings.Join(parts, " ")
}
