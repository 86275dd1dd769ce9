package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/jondoveston/monitop/internal/snapshot"
)

// NotAvailable is shown for any field missing from the payload
const NotAvailable = "N/A"

// Lookuper resolves dotted paths. *snapshot.Snapshot and Values satisfy it.
type Lookuper interface {
	Lookup(path string) (any, bool)
}

// Values is a plain nested map that can be rendered like a snapshot
type Values map[string]any

// Lookup resolves a dotted path through nested maps
func (v Values) Lookup(path string) (any, bool) {
	if v == nil || path == "" {
		return nil, false
	}
	return snapshot.Walk(v, strings.Split(path, "."))
}

// Env carries what formatters need beyond the payload itself
type Env struct {
	Location *time.Location
	Unit     string
}

// Valuer extracts and formats one display value
type Valuer func(src Lookuper, env Env) (string, bool)

// Field maps a payload value onto a labelled widget
type Field struct {
	ID    string
	Label string
	Info  string
	Value Valuer
}

// Cell is a rendered field
type Cell struct {
	ID    string
	Label string
	Value string
	Info  string
}

// Render formats every field of fields from src. Missing values become NotAvailable.
func Render(src Lookuper, fields []Field, env Env) []Cell {
	cells := make([]Cell, 0, len(fields))
	for _, f := range fields {
		value := NotAvailable
		if src != nil && f.Value != nil {
			if v, ok := f.Value(src, env); ok {
				value = v
			}
		}
		cells = append(cells, Cell{ID: f.ID, Label: f.Label, Value: value, Info: f.Info})
	}
	return cells
}

// Path renders the value at path as is
func Path(path string) Valuer {
	return func(src Lookuper, _ Env) (string, bool) {
		v, ok := src.Lookup(path)
		if !ok {
			return "", false
		}
		return snapshot.FormatValue(v), true
	}
}

// Join renders each part with sep between them. A missing part shows as
// NotAvailable; the field is missing only when every part is.
func Join(sep string, parts ...Valuer) Valuer {
	return func(src Lookuper, env Env) (string, bool) {
		out := make([]string, len(parts))
		found := false
		for i, part := range parts {
			v, ok := part(src, env)
			if !ok {
				v = NotAvailable
			} else {
				found = true
			}
			out[i] = v
		}
		return strings.Join(out, sep), found
	}
}

// Percent renders a number with a percent sign, leaving values that already carry one alone
func Percent(path string) Valuer {
	return func(src Lookuper, _ Env) (string, bool) {
		v, ok := src.Lookup(path)
		if !ok {
			return "", false
		}
		s := snapshot.FormatValue(v)
		if strings.HasSuffix(s, "%") {
			return s, true
		}
		return s + "%", true
	}
}

// WithUnit appends the snapshot unit to bare numbers
func WithUnit(path string) Valuer {
	return func(src Lookuper, env Env) (string, bool) {
		v, ok := src.Lookup(path)
		if !ok {
			return "", false
		}
		s := snapshot.FormatValue(v)
		if env.Unit == "" {
			return s, true
		}
		if _, isNum := snapshot.ToFloat(v); isNum && isBareNumber(s) {
			return s + " " + env.Unit, true
		}
		return s, true
	}
}

func isBareNumber(s string) bool {
	s = strings.TrimSpace(s)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && c != '.' && c != '-' && c != '+' && c != 'e' && c != 'E' {
			return false
		}
	}
	return s != ""
}

// StartTime renders an RFC 3339 timestamp as a localized date and time,
// "January 2, 2006 3:04 PM"
func StartTime(path string) Valuer {
	return func(src Lookuper, env Env) (string, bool) {
		v, ok := src.Lookup(path)
		if !ok {
			return "", false
		}
		var t time.Time
		switch tv := v.(type) {
		case time.Time:
			t = tv
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, tv)
			if err != nil {
				return tv, true
			}
			t = parsed
		default:
			return snapshot.FormatValue(v), true
		}
		if t.IsZero() {
			return "", false
		}
		return FormatStartTime(t, env.Location), true
	}
}

// FormatStartTime formats t in loc, local time when loc is nil
func FormatStartTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return t.Format("January 2, 2006") + " " + t.Format("3:04 PM")
}

// AvgResponse divides the total request duration (milliseconds, "1234.5ms" or
// a bare number) by the request count
func AvgResponse(requestsPath, durationPath string) Valuer {
	return func(src Lookuper, _ Env) (string, bool) {
		rv, ok := src.Lookup(requestsPath)
		if !ok {
			return "", false
		}
		dv, ok := src.Lookup(durationPath)
		if !ok {
			return "", false
		}
		requests, ok := snapshot.ToFloat(rv)
		if !ok {
			return "", false
		}
		total, ok := snapshot.ToFloat(dv)
		if !ok {
			return "", false
		}
		avg := 0.0
		if requests > 0 {
			avg = total / requests
		}
		return FormatMillis(avg), true
	}
}

// FormatMillis picks ms, s, m or h for a duration in milliseconds, three decimals
func FormatMillis(ms float64) string {
	switch {
	case ms >= 3600000:
		return fmt.Sprintf("%.3fh", ms/3600000)
	case ms >= 60000:
		return fmt.Sprintf("%.3fm", ms/60000)
	case ms >= 1000:
		return fmt.Sprintf("%.3fs", ms/1000)
	default:
		return fmt.Sprintf("%.3fms", ms)
	}
}
