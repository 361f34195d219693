package mapping

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Mapping declares how one source's raw fields translate to internal
// columns. FieldMap is external field name -> internal field name;
// Transforms is internal field name -> transform kind.
type Mapping struct {
	FieldMap   map[string]string        `json:"field_map"`
	Transforms map[string]TransformKind `json:"transforms"`
}

// Registry is a thread-safe lookup from source key to its field mapping.
// Seeded with built-in mappings at startup and extended from each
// SourceConfig's mapping JSON.
type Registry struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
}

// NewRegistry creates a registry pre-loaded with the built-in mappings
func NewRegistry() *Registry {
	r := &Registry{mappings: make(map[string]Mapping)}
	for key, m := range builtinMappings {
		r.mappings[key] = m
	}
	return r
}

// Register adds or replaces the mapping for a source key
func (r *Registry) Register(sourceKey string, m Mapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mappings[sourceKey] = m
}

// RegisterJSON parses a SourceConfig field-mapping document and registers it
func (r *Registry) RegisterJSON(sourceKey, doc string) error {
	if doc == "" {
		return nil
	}
	var m Mapping
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return fmt.Errorf("invalid field mapping for source %s: %w", sourceKey, err)
	}
	if len(m.FieldMap) == 0 {
		return nil
	}
	r.Register(sourceKey, m)
	return nil
}

// Lookup returns the mapping for a source key. A miss is recoverable: the
// caller falls back to passing the raw record through unmodified.
func (r *Registry) Lookup(sourceKey string) (Mapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.mappings[sourceKey]
	return m, ok
}

// Remove drops a source's mapping (used when a SourceConfig is deleted)
func (r *Registry) Remove(sourceKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.mappings, sourceKey)
}

// Keys lists the registered source keys
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.mappings))
	for k := range r.mappings {
		keys = append(keys, k)
	}
	return keys
}

// builtinMappings covers sources whose schemas are known ahead of time.
// Operator-defined mappings on SourceConfig rows override these.
var builtinMappings = map[string]Mapping{
	"demo_api": {
		FieldMap: map[string]string{
			"price":        "valor",
			"city":         "cidade",
			"neighborhood": "bairro",
			"address":      "endereco",
			"area":         "area",
			"description":  "descricao",
			"phone":        "contato",
			"category":     "categoria",
			"type":         "tipo_transacao",
		},
		Transforms: map[string]TransformKind{
			"valor":   TransformCurrency,
			"cidade":  TransformText,
			"bairro":  TransformText,
			"area":    TransformFloat,
			"contato": TransformPhone,
		},
	},
}
