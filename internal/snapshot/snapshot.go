package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// MiscCategory holds top-level scalar fields that are not part of a named category
	MiscCategory = "misc"

	// HealthCategory is the current name of the health category, older services send "health"
	HealthCategory       = "overall_health"
	legacyHealthCategory = "health"
)

// Snapshot is one point-in-time reading of the metrics endpoint.
// It is never mutated after Decode returns.
type Snapshot struct {
	FetchedAt  time.Time
	Unit       string
	Categories map[string]map[string]any
}

// Record is a single entry of a memory statistics record list
type Record struct {
	Name        string
	Description string
	Value       float64
	Unit        string
}

// Point is one entry of a time series returned by the history endpoints
type Point struct {
	Time  time.Time          `json:"time"`
	Value map[string]float64 `json:"value"`
}

// Decode parses a metrics payload into a Snapshot
func Decode(r io.Reader, unit string, fetchedAt time.Time) (*Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("failed to decode metrics: empty payload")
	}

	s := &Snapshot{
		FetchedAt:  fetchedAt,
		Unit:       unit,
		Categories: make(map[string]map[string]any, len(raw)),
	}
	for key, value := range raw {
		if category, ok := value.(map[string]any); ok {
			s.Categories[key] = category
			continue
		}
		if s.Categories[MiscCategory] == nil {
			s.Categories[MiscCategory] = map[string]any{}
		}
		s.Categories[MiscCategory][key] = value
	}

	if _, ok := s.Categories[HealthCategory]; !ok {
		if legacy, ok := s.Categories[legacyHealthCategory]; ok {
			s.Categories[HealthCategory] = legacy
		}
	}

	return s, nil
}

// Lookup resolves a dotted path such as "overall_health.health.healthy".
// A present key holding JSON null counts as absent.
func (s *Snapshot) Lookup(path string) (any, bool) {
	if s == nil || path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	category, ok := s.Categories[parts[0]]
	if !ok {
		return nil, false
	}
	if len(parts) == 1 {
		return category, true
	}
	return Walk(category, parts[1:])
}

// Walk follows keys through nested JSON objects
func Walk(node map[string]any, keys []string) (any, bool) {
	var current any = node
	for _, key := range keys {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// String returns the value at path formatted for display
func (s *Snapshot) String(path string) (string, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return "", false
	}
	return FormatValue(v), true
}

// Float returns the leading number of the value at path, so "12.5%" and "3.2 MB" both parse
func (s *Snapshot) Float(path string) (float64, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return 0, false
	}
	return ToFloat(v)
}

// Bool returns the boolean at path
func (s *Snapshot) Bool(path string) (bool, bool) {
	v, ok := s.Lookup(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Records returns the record list at path, skipping entries without a numeric value
func (s *Snapshot) Records(path string) []Record {
	v, ok := s.Lookup(path)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}

	records := make([]Record, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		value, ok := ToFloat(obj["record_value"])
		if !ok {
			continue
		}
		name, _ := obj["record_name"].(string)
		desc, _ := obj["record_description"].(string)
		unit, _ := obj["record_unit"].(string)
		records = append(records, Record{Name: name, Description: desc, Value: value, Unit: unit})
	}
	return records
}

// Entry is one leaf of a flattened snapshot
type Entry struct {
	Category string
	Path     string
	Value    any
}

// Flatten returns every scalar leaf sorted by path. Lists are skipped.
func (s *Snapshot) Flatten() []Entry {
	var entries []Entry
	for name, category := range s.Categories {
		flattenInto(&entries, name, name, category)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return entries
}

func flattenInto(entries *[]Entry, category, prefix string, node map[string]any) {
	for key, value := range node {
		path := prefix + "." + key
		switch v := value.(type) {
		case map[string]any:
			flattenInto(entries, category, path, v)
		case []any, nil:
		default:
			*entries = append(*entries, Entry{Category: category, Path: path, Value: v})
		}
	}
}

// FormatValue renders a decoded JSON value the way the dashboard displays it
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// ToFloat converts a decoded JSON value to a float
func ToFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		return ParseFloat(t)
	default:
		return 0, false
	}
}

// ParseFloat parses the longest numeric prefix of s, ignoring leading whitespace
func ParseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
scan:
	for end < len(s) {
		c := s[end]
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
		case (c == '+' || c == '-') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E'):
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
		case (c == 'e' || c == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			break scan
		}
		end++
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f, true
		}
		end--
	}
	return 0, false
}
