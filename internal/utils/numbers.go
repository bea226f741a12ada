package utils

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractFloat converts common scalar types into float64.
// The exchange sends sizes and prices as either JSON numbers or strings.
func ExtractFloat(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseFloat(v, 64)
	case nil:
		return 0, fmt.Errorf("null value")
	default:
		return 0, fmt.Errorf("unsupported float type %T", val)
	}
}

// ExtractInt converts common scalar types into int64.
func ExtractInt(val any) (int64, error) {
	switch v := val.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		if v == "" {
			return 0, fmt.Errorf("empty string")
		}
		return strconv.ParseInt(v, 10, 64)
	case nil:
		return 0, fmt.Errorf("null value")
	default:
		return 0, fmt.Errorf("unsupported int type %T", val)
	}
}

// Number is a JSON value that may arrive as a number or a numeric string.
// A null or empty value decodes to zero.
type Number float64

// UnmarshalJSON implements lenient numeric decoding
func (n *Number) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	f, err := ExtractFloat(strings.Trim(s, "\""))
	if err != nil {
		return fmt.Errorf("invalid number %s: %w", s, err)
	}
	*n = Number(f)
	return nil
}

// Float64 returns n as a float64
func (n Number) Float64() float64 {
	return float64(n)
}
