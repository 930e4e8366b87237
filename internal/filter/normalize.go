package filter

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alfredjeanlab/pipefilter/internal/catalog"
	"github.com/alfredjeanlab/pipefilter/internal/pipeline"
)

// ParseBool accepts "true", "1", "false" and "0" in any case.
func ParseBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	case int, int64, float64:
		s, _ := scalarString(v)
		return ParseBool(s)
	}
	return false, false
}

// parseExists is ParseBool where an empty value means true, as in
// "?exists[brand]".
func parseExists(raw any) (bool, bool) {
	if s, ok := raw.(string); ok && s == "" {
		return true, true
	}
	return ParseBool(raw)
}

// scalarString renders strings and numbers; other values are rejected.
func scalarString(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	}
	return "", false
}

// parseNumber parses an integer when possible and a float otherwise.
func parseNumber(s string) (any, bool) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func toFloat(n any) float64 {
	switch v := n.(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return math.NaN()
}

// parseNumeric converts raw to the numeric subtype of t.
func parseNumeric(t catalog.FieldType, raw any) (any, bool) {
	s, ok := scalarString(raw)
	if !ok {
		return nil, false
	}
	s = strings.TrimSpace(s)
	switch t {
	case catalog.TypeInt:
		i, err := strconv.ParseInt(s, 10, 64)
		return i, err == nil
	case catalog.TypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return f, true
	}
	return nil, false
}

// scalarOrList flattens a scalar or a list into a slice. Nested bags are
// rejected.
func scalarOrList(raw any) ([]any, bool) {
	switch v := raw.(type) {
	case nil:
		return nil, false
	case []any:
		return v, len(v) > 0
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, len(v) > 0
	}
	if _, ok := scalarString(raw); ok {
		return []any{raw}, true
	}
	if b, ok := raw.(bool); ok {
		return []any{b}, true
	}
	return nil, false
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	time.RFC1123Z,
	time.RFC1123,
	"02 Jan 2006",
	"2 January 2006",
	"January 2, 2006",
	"Jan 2, 2006",
}

// ParseDate parses the date formats accepted in query strings. Relative
// keywords ("now", "today", "yesterday", "tomorrow") are resolved against
// now. Values without a zone are UTC.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch strings.ToLower(s) {
	case "now":
		return now, nil
	case "today":
		return midnight, nil
	case "yesterday":
		return midnight.AddDate(0, 0, -1), nil
	case "tomorrow":
		return midnight.AddDate(0, 0, 1), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// splitRange splits "min..max" into its two bounds.
func splitRange(s string) (string, string, bool) {
	lo, hi, ok := strings.Cut(s, "..")
	if !ok || lo == "" || hi == "" || strings.Contains(hi, "..") {
		return "", "", false
	}
	return lo, hi, true
}

// extractIdentifier turns "/books/42" into "42" when resourcePath is
// "/books". Other values are returned unchanged.
func extractIdentifier(raw, resourcePath string) string {
	if resourcePath == "" || !strings.HasPrefix(raw, "/") {
		return raw
	}
	rest, ok := strings.CutPrefix(raw, strings.TrimSuffix(resourcePath, "/")+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return raw
	}
	return rest
}

func isObjectIDHex(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// identifierValue converts an extracted identifier to its stored form.
func identifierValue(id string) any {
	if isObjectIDHex(id) {
		return pipeline.ObjectID(strings.ToLower(id))
	}
	return id
}

// coerce converts a raw request value to the stored type of field.
func coerce(field catalog.Field, raw any, now time.Time) (any, bool) {
	switch field.Type {
	case catalog.TypeInt, catalog.TypeFloat:
		return parseNumeric(field.Type, raw)
	case catalog.TypeBool:
		return ParseBool(raw)
	}
	s, ok := scalarString(raw)
	if !ok {
		return nil, false
	}
	switch field.Type {
	case catalog.TypeDate:
		t, err := ParseDate(s, now)
		if err != nil {
			return nil, false
		}
		return pipeline.Date(t), true
	case catalog.TypeUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, false
		}
		return pipeline.UUID(u), true
	case catalog.TypeID:
		return identifierValue(s), true
	}
	return s, true
}
