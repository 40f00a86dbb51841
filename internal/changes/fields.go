package changes

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Fields holds the decoded JSON values submitted for one record.
type Fields map[string]any

var (
	errNotText   = errors.New("value is not text")
	errNotNumber = errors.New("value is not a number")
	errNotBool   = errors.New("value is not a boolean")
)

// naiveLayouts are accepted for dates submitted without an offset. They are
// read in the tracker's location.
var naiveLayouts = []string{
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

func textValue(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errNotText
	}
	return strings.TrimSpace(s), nil
}

func numberValue(v any) (float64, error) {
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
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errNotNumber
		}
		return f, nil
	default:
		return 0, errNotNumber
	}
}

func boolValue(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, errNotBool
		}
		return parsed, nil
	default:
		return false, errNotBool
	}
}

func capacityValue(v any) (int, error) {
	f, err := numberValue(v)
	if err != nil {
		return 0, err
	}
	if f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("capacity must be a non-negative integer")
	}
	return int(f), nil
}

func amountValue(v any) (float64, error) {
	f, err := numberValue(v)
	if err != nil {
		return 0, err
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("amount must be a non-negative number")
	}
	return f, nil
}

func currencyValue(v any) (string, error) {
	s, err := textValue(v)
	if err != nil {
		return "", err
	}
	if !currencyPattern.MatchString(s) {
		return "", fmt.Errorf("currency must be a three letter code")
	}
	return strings.ToUpper(s), nil
}

// pointValue accepts a [lat, lon] pair of numbers or numeric strings.
func pointValue(v any) (float64, float64, error) {
	var pair []any
	switch p := v.(type) {
	case []any:
		pair = p
	case []float64:
		pair = make([]any, len(p))
		for i := range p {
			pair[i] = p[i]
		}
	default:
		return 0, 0, errors.New("coordinates must be a [lat, lon] pair")
	}
	if len(pair) != 2 {
		return 0, 0, errors.New("coordinates must be a [lat, lon] pair")
	}
	lat, err := numberValue(pair[0])
	if err != nil {
		return 0, 0, err
	}
	lon, err := numberValue(pair[1])
	if err != nil {
		return 0, 0, err
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, errors.New("coordinates out of range")
	}
	return lat, lon, nil
}

// ParsePoint reads the canonical "lat,lon" text written by FormatPoint.
func ParsePoint(s string) (float64, float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid point %q", s)
	}
	return pointValue([]any{parts[0], parts[1]})
}

func timeValue(v any, loc *time.Location) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			return parsed, nil
		}
		for _, layout := range naiveLayouts {
			if parsed, err := time.ParseInLocation(layout, s, loc); err == nil {
				return parsed, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	default:
		return time.Time{}, errNotText
	}
}
