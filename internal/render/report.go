package render

import (
	"strings"

	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/snapshot"
)

// ReportTopics are the report topics offered, in display order
var ReportTopics = []string{"LoadStatistics", "CPUStatistics", "MemoryStatistics", "OverallHealth"}

// Table is a rendered report
type Table struct {
	Headers []string
	Rows    [][]string
}

// ReportHeader turns a payload key into a column header, "heap_alloc" -> "HEAP ALLOC"
func ReportHeader(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, "_", " "))
}

// ReportTable lays rows out with the first row's direct keys followed by its
// "value" keys. Cells missing from later rows are empty.
func ReportTable(rows []client.ReportRow) Table {
	if len(rows) == 0 {
		return Table{}
	}

	direct := rows[0].Direct()
	var nested []string
	if obj, ok := rows[0].Nested(); ok {
		nested = obj.Keys
	}

	t := Table{Headers: make([]string, 0, len(direct)+len(nested))}
	for _, k := range direct {
		t.Headers = append(t.Headers, ReportHeader(k))
	}
	for _, k := range nested {
		t.Headers = append(t.Headers, ReportHeader(k))
	}

	for _, row := range rows {
		cells := make([]string, 0, len(t.Headers))
		for _, k := range direct {
			cells = append(cells, reportCell(row.Object, k))
		}
		obj, _ := row.Nested()
		for _, k := range nested {
			cells = append(cells, reportCell(obj, k))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func reportCell(obj client.Object, key string) string {
	v, ok := obj.Get(key)
	if !ok || v == nil {
		return ""
	}
	if _, isObj := v.(client.Object); isObj {
		return ""
	}
	return snapshot.FormatValue(v)
}
