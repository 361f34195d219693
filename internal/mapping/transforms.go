package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

// TransformKind names a pure value transform applied to one field during
// mapping. Kinds are plain strings so mappings stay serializable in a
// SourceConfig row.
type TransformKind string

const (
	TransformCurrency TransformKind = "currency"
	TransformInteger  TransformKind = "integer"
	TransformFloat    TransformKind = "float"
	TransformBoolean  TransformKind = "boolean"
	TransformPhone    TransformKind = "phone"
	TransformText     TransformKind = "text"
)

// Apply runs the named transform over a raw value. Nil input never errors;
// it yields the type-appropriate zero value. An unknown kind passes the
// value through unchanged.
func Apply(kind TransformKind, value interface{}) (interface{}, error) {
	switch kind {
	case TransformCurrency:
		return parseCurrency(value)
	case TransformInteger:
		return parseInteger(value)
	case TransformFloat:
		return parseFloat(value)
	case TransformBoolean:
		return parseBoolean(value), nil
	case TransformPhone:
		return parsePhone(value), nil
	case TransformText:
		return parseText(value), nil
	default:
		return value, nil
	}
}

// parseCurrency accepts numbers and Brazilian-formatted strings
// ("250.000,00" -> 250000). Returns 0 for nil or empty input.
func parseCurrency(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		// Strip currency symbols and spaces
		s = strings.NewReplacer("R$", "", "$", "", " ", "", " ", "").Replace(s)
		if strings.Contains(s, ",") {
			// Brazilian format: "." groups thousands, "," is the decimal mark
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		} else if strings.Count(s, ".") > 1 {
			// "250.000.000" style grouping without decimals
			s = strings.ReplaceAll(s, ".", "")
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid currency value %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported currency type %T", value)
	}
}

func parseInteger(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, nil
		}
		// Drop a decimal part if one sneaks in ("3.0", "3,0")
		if i := strings.IndexAny(s, ".,"); i >= 0 {
			s = s[:i]
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unsupported integer type %T", value)
	}
}

func parseFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", "."))
		if s == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid float value %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

func parseBoolean(value interface{}) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "sim", "s", "y":
			return true
		}
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

// parsePhone keeps digits only, preserving a leading "+"
func parsePhone(value interface{}) string {
	s := parseText(value)
	if s == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseText(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		// JSON numbers arrive as float64; render integers without decimals
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
