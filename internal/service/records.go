package service

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// record is one decoded ERP object. The ERP is loose about field names and
// number encodings, so lookups try several keys and accept numeric strings.
type record map[string]any

// decodeObjects keeps the raw entries that are JSON objects.
func decodeObjects(raw []json.RawMessage) []record {
	out := make([]record, 0, len(raw))
	for _, r := range raw {
		var m map[string]any
		if err := json.Unmarshal(r, &m); err != nil || m == nil {
			continue
		}
		out = append(out, record(m))
	}
	return out
}

func (r record) str(keys ...string) string {
	for _, k := range keys {
		switch v := r[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case map[string]any:
			if s := record(v).str("name", "description", "title"); s != "" {
				return s
			}
		}
	}
	return ""
}

func (r record) num(keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case float64:
			return v, true
		case string:
			if f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", "."), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func (r record) boolean(keys ...string) (bool, bool) {
	for _, k := range keys {
		switch v := r[k].(type) {
		case bool:
			return v, true
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

func (r record) list(keys ...string) []record {
	for _, k := range keys {
		items, ok := r[k].([]any)
		if !ok {
			continue
		}
		out := make([]record, 0, len(items))
		for _, it := range items {
			if m, ok := it.(map[string]any); ok {
				out = append(out, record(m))
			}
		}
		return out
	}
	return nil
}

// truncate cuts s to at most max runes, appending "…" when it cut.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
