package review

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

func coerceString(v any) (string, bool) {
	switch value := v.(type) {
	case string:
		return value, true
	case json.Number:
		return value.String(), true
	case float64:
		if value == math.Trunc(value) && math.Abs(value) < 1e15 {
			return strconv.FormatInt(int64(value), 10), true
		}
		return strconv.FormatFloat(value, 'f', -1, 64), true
	case int:
		return strconv.Itoa(value), true
	case int64:
		return strconv.FormatInt(value, 10), true
	}
	return "", false
}

func optionalString(v any) *string {
	s, ok := coerceString(v)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// wholeNumber returns the integer held by a json value, numeric strings
// and whole floats count, anything else does not.
func wholeNumber(v any) (int64, bool) {
	var f float64
	switch value := v.(type) {
	case json.Number:
		i, err := value.Int64()
		if err == nil {
			return i, true
		}
		f, err = value.Float64()
		if err != nil {
			return 0, false
		}
	case float64:
		f = value
	case int:
		return int64(value), true
	case int64:
		return value, true
	case string:
		trimmed := strings.TrimSpace(value)
		i, err := strconv.ParseInt(trimmed, 10, 64)
		if err == nil {
			return i, true
		}
		f, err = strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// CoerceRating accepts whole numbers from 1 to 5, anything else is nil.
func CoerceRating(v any) *int {
	n, ok := wholeNumber(v)
	if !ok || n < 1 || n > 5 {
		return nil
	}
	rating := int(n)
	return &rating
}

// CoerceCount accepts non-negative whole numbers, anything else is 0.
func CoerceCount(v any) int {
	n, ok := wholeNumber(v)
	if !ok || n < 0 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}

// epoch values above this are taken to be milliseconds, in seconds it
// would be the year 5138.
const epochMillisThreshold = 1e11

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"Mon Jan 02 15:04:05 -0700 2006",
}

// ParseDate reads the timestamp representations found in page state into
// a UTC time, nil when nothing matches.
func ParseDate(v any) *time.Time {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		for _, layout := range dateLayouts {
			t, err := time.Parse(layout, s)
			if err == nil {
				t = t.UTC()
				return &t
			}
		}
	}

	n, ok := wholeNumber(v)
	if !ok || n <= 0 {
		return nil
	}
	var t time.Time
	if n > epochMillisThreshold {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}
