package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// dateLayouts are tried in order when converting a string to a date.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006/01/02 15:04:05",
	"2006/01/02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006/01/02",
	"2006-01-02",
}

// Convert coerces a raw value (as decoded from JSON, or supplied by a
// caller) into the Go representation for the field's type:
// int64, float64, string, bool or time.Time. Nil stays nil.
func (f *FieldMeta) Convert(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case FieldTypeInt:
		return toInt(v)
	case FieldTypeFloat:
		return toFloat(v)
	case FieldTypeBoolean:
		return toBool(v)
	case FieldTypeDate:
		return toDate(v)
	default:
		return toString(v), nil
	}
}

func toInt(v any) (any, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return nil, fmt.Errorf("must be an integer, got %v", n)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("must be an integer, got %q", n)
		}
		return i, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("must be an integer, got %q", n)
		}
		return i, nil
	}
	return nil, fmt.Errorf("must be an integer, got %T", v)
}

func toFloat(v any) (any, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("must be a number, got %q", n)
		}
		return f, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("must be a number, got %q", n)
		}
		return f, nil
	}
	return nil, fmt.Errorf("must be a number, got %T", v)
}

func toBool(v any) (any, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case int64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "":
			return nil, nil
		case "true", "t", "yes", "y", "on", "1":
			return true, nil
		case "false", "f", "no", "n", "off", "0":
			return false, nil
		}
		return nil, fmt.Errorf("must be a boolean, got %q", b)
	}
	return nil, fmt.Errorf("must be a boolean, got %T", v)
}

func toDate(v any) (any, error) {
	switch d := v.(type) {
	case time.Time:
		return d, nil
	case string:
		s := strings.TrimSpace(d)
		if s == "" {
			return nil, nil
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("must be a date, got %q", d)
	case float64:
		// Epoch milliseconds.
		return time.UnixMilli(int64(d)).UTC(), nil
	case int64:
		return time.UnixMilli(d).UTC(), nil
	}
	return nil, fmt.Errorf("must be a date, got %T", v)
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case time.Time:
		return s.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// FormatValue renders a converted value for display. Nil renders as "".
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	return toString(v)
}

// KeyString returns the canonical index key for a primary-key value, so that
// 7, int64(7) and 7.0 (as decoded from JSON) all index the same row.
func KeyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case json.Number:
		return k.String()
	default:
		return fmt.Sprint(v)
	}
}

// IsBlank reports whether v counts as "no value" for required-field checks.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
