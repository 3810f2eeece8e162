package capability

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"product-import-service/internal/models"
)

// Lookup returns the first non-empty value found under any of the given keys.
// Keys may be dotted paths into nested objects ("offers.price"); lookup falls
// back to a case-insensitive match so that spreadsheet headers resolve too.
func Lookup(raw models.RawRecord, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := lookupPath(map[string]interface{}(raw), key); ok && !isEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(m map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = m
	for _, part := range parts {
		obj, ok := asMap(current)
		if !ok {
			return nil, false
		}
		v, found := obj[part]
		if !found {
			for k, candidate := range obj {
				if strings.EqualFold(k, part) {
					v, found = candidate, true
					break
				}
			}
		}
		if !found {
			return nil, false
		}
		current = v
	}
	return current, true
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case models.RawRecord:
		return map[string]interface{}(m), true
	case map[string]string:
		out := make(map[string]interface{}, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	}
	return nil, false
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []interface{}:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// String returns the first value under keys rendered as a trimmed string
func String(raw models.RawRecord, keys ...string) string {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return ""
	}
	return ToString(v)
}

// ToString renders scalar values; objects yield their "name", "value" or "text" entry
func ToString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	}
	if m, ok := asMap(v); ok {
		for _, key := range []string{"name", "value", "text", "#text", "@value"} {
			if s, found := m[key]; found {
				return ToString(s)
			}
		}
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Strings returns the first list under keys. Delimited strings are split on
// "|", ";" or ","; objects in the list contribute their url-like entry.
func Strings(raw models.RawRecord, keys ...string) []string {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return nil
	}
	return ToStrings(v)
}

// ToStrings converts a list-shaped value into strings
func ToStrings(v interface{}) []string {
	var out []string
	switch t := v.(type) {
	case []string:
		for _, s := range t {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range t {
			if m, ok := asMap(item); ok {
				for _, key := range []string{"url", "src", "href", "contentUrl", "value", "name"} {
					if s := ToString(m[key]); s != "" {
						out = append(out, s)
						break
					}
				}
				continue
			}
			if s := ToString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		out = splitList(t)
	default:
		if m, ok := asMap(v); ok {
			if s := ToString(m["url"]); s != "" {
				out = append(out, s)
			}
			break
		}
		if s := ToString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep := ""
	for _, candidate := range []string{"|", ";", ","} {
		if strings.Contains(s, candidate) {
			sep = candidate
			break
		}
	}
	if sep == "" {
		return []string{s}
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Objects returns the first list of objects under keys
func Objects(raw models.RawRecord, keys ...string) []models.RawRecord {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return nil
	}
	items, ok := v.([]interface{})
	if !ok {
		if m, isMap := asMap(v); isMap {
			return []models.RawRecord{models.RawRecord(m)}
		}
		return nil
	}
	out := make([]models.RawRecord, 0, len(items))
	for _, item := range items {
		if m, isMap := asMap(item); isMap {
			out = append(out, models.RawRecord(m))
		}
	}
	return out
}

// Object returns the nested object under the first matching key
func Object(raw models.RawRecord, keys ...string) models.RawRecord {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return nil
	}
	if m, isMap := asMap(v); isMap {
		return models.RawRecord(m)
	}
	return nil
}

// Float parses the first numeric value under keys
func Float(raw models.RawRecord, keys ...string) (float64, bool) {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// ToFloat converts a number or numeric string into a float64
func ToFloat(v interface{}) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.Replace(t, ",", ".", 1)), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int parses the first integer value under keys
func Int(raw models.RawRecord, keys ...string) (int, bool) {
	f, ok := Float(raw, keys...)
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}

// Bool parses the first boolean-like value under keys
func Bool(raw models.RawRecord, keys ...string) (bool, bool) {
	v, ok := Lookup(raw, keys...)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1", "y", "oui":
			return true, true
		case "false", "no", "0", "n", "non":
			return false, true
		}
	case float64:
		return t != 0, true
	}
	return false, false
}

// FloatPtr returns a pointer to the parsed value, or nil when absent
func FloatPtr(raw models.RawRecord, keys ...string) *float64 {
	if f, ok := Float(raw, keys...); ok {
		return &f
	}
	return nil
}

// IntPtr returns a pointer to the parsed value, or nil when absent
func IntPtr(raw models.RawRecord, keys ...string) *int {
	if i, ok := Int(raw, keys...); ok {
		return &i
	}
	return nil
}
