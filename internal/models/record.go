package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SyncFieldsFromRecord filters a transformed record down to the columns the
// pipeline may write and coerces each value into its column type. The result
// feeds both inserts (via ImovelFromSyncFields) and partial updates.
func SyncFieldsFromRecord(record map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(record))
	for key, value := range FilterSyncColumns(record) {
		switch key {
		case "valor", "area", "latitude", "longitude":
			if f, ok := asFloat(value); ok {
				fields[key] = f
			}
		case "images":
			if list, ok := asStringList(value); ok {
				fields[key] = list
			}
		case "last_sync_at":
			if t, ok := value.(time.Time); ok {
				fields[key] = t
			}
		default:
			fields[key] = asString(value)
		}
	}
	return fields
}

// ImovelFromSyncFields builds a new listing from coerced sync fields
func ImovelFromSyncFields(fields map[string]interface{}) *Imovel {
	imovel := &Imovel{Active: true}
	ApplySyncFields(imovel, fields)
	return imovel
}

// ApplySyncFields writes coerced sync fields onto a listing struct. Used to
// keep the search index in step with partial updates without re-reading.
func ApplySyncFields(i *Imovel, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "categoria":
			i.Categoria = asString(value)
		case "tipo_transacao":
			i.TipoTransacao = asString(value)
		case "subtipo":
			i.Subtipo = asString(value)
		case "cidade":
			i.Cidade = asString(value)
		case "bairro":
			i.Bairro = asString(value)
		case "endereco":
			i.Endereco = asString(value)
		case "descricao":
			i.Descricao = asString(value)
		case "contato":
			i.Contato = asString(value)
		case "valor":
			if f, ok := asFloat(value); ok {
				i.Valor = &f
			}
		case "area":
			if f, ok := asFloat(value); ok {
				i.Area = &f
			}
		case "latitude":
			if f, ok := asFloat(value); ok {
				i.Latitude = &f
			}
		case "longitude":
			if f, ok := asFloat(value); ok {
				i.Longitude = &f
			}
		case "images":
			if list, ok := asStringList(value); ok {
				i.Images = list
			}
		case "source_api":
			s := asString(value)
			i.SourceAPI = &s
		case "external_id":
			s := asString(value)
			i.ExternalID = &s
		case "source_display_name":
			i.SourceDisplayName = asString(value)
		case "sync_status":
			i.SyncStatus = asString(value)
		case "last_sync_at":
			if t, ok := value.(time.Time); ok {
				i.LastSyncAt = &t
			}
		}
	}
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func asStringList(value interface{}) (StringList, bool) {
	switch v := value.(type) {
	case StringList:
		return v, true
	case []string:
		return StringList(v), true
	case []interface{}:
		list := make(StringList, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				list = append(list, s)
			}
		}
		return list, true
	case string:
		if v == "" {
			return nil, false
		}
		return StringList{v}, true
	default:
		return nil, false
	}
}
