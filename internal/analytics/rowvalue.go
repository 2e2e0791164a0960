package analytics

import "strconv"

// Result values arrive as whatever Go types the engine driver produces
// (pgx native values, database/sql scans). The coercions below normalize
// the handful of shapes both drivers emit for text, integer, and floating
// columns; anything unrecognized degrades to the zero value rather than
// failing the whole view.

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return ""
	}
}

func stringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := stringValue(v)
	return &s
}

func intValue(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case uint64:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func floatValue(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int64:
		f = float64(t)
	case int32:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case []byte:
		parsed, err := strconv.ParseFloat(string(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}
