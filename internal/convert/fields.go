package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field coercion types understood by MapValue.
const (
	TypeString   = "string"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
)

// datetimeLayouts are tried in order when coercing source date values.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// MapValue copies source[sourceKey] into target[targetKey], coercing to
// the given type. Absent or nil source keys leave the target untouched;
// this is the expected case for optional fields, never an error.
// Unparseable datetimes are treated as absent.
func MapValue(target Record, targetKey string, source Record, sourceKey, typ string) {
	raw, ok := source[sourceKey]
	if !ok || raw == nil {
		return
	}

	switch typ {
	case TypeBoolean:
		target[targetKey] = truthy(raw)
	case TypeDatetime:
		if ts, ok := parseDatetime(raw); ok {
			target[targetKey] = ts
		}
	default:
		target[targetKey] = stringify(raw)
	}
}

// EmptyRequiredFields returns the subset of required keys that are
// absent or empty-string in the record. Pure function, no side effects.
func EmptyRequiredFields(record Record, required []string) []string {
	var missing []string
	for _, key := range required {
		raw, ok := record[key]
		if !ok || raw == nil {
			missing = append(missing, key)
			continue
		}
		if s, isStr := raw.(string); isStr && s == "" {
			missing = append(missing, key)
		}
	}
	return missing
}

func truthy(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		}
		return false
	default:
		return false
	}
}

func parseDatetime(raw any) (string, bool) {
	switch v := raw.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return "", false
		}
		for _, layout := range datetimeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC().Format(time.RFC3339), true
			}
		}
		return "", false
	default:
		return "", false
	}
}

func stringify(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// SourceString reads a record field as a string, tolerating numeric
// source representations. Returns "" when the key is absent or nil.
func SourceString(record Record, key string) string {
	raw, ok := record[key]
	if !ok || raw == nil {
		return ""
	}
	return stringify(raw)
}
