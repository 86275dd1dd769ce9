package devserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jondoveston/monitop/internal/charts"
	"github.com/jondoveston/monitop/internal/snapshot"
)

// reportBuckets is how many rows a report is split into at most
const reportBuckets = 12

var reportGroups = map[string]string{
	"LoadStatistics":   "load-memory",
	"CPUStatistics":    "cpu-usage",
	"MemoryStatistics": "heap",
	"OverallHealth":    "health",
}

// ReportFields returns the history fields behind a report topic
func ReportFields(topic string) ([]string, error) {
	name, ok := reportGroups[topic]
	if !ok {
		return nil, fmt.Errorf("unknown report topic %q", topic)
	}
	group, _ := charts.FindGroup(name)
	return group.Fields, nil
}

// ReportRow is one averaged bucket of a report
type ReportRow struct {
	Time    string
	Samples int
	Fields  []string
	Values  map[string]float64
}

// MarshalJSON keeps the field order of the topic
func (r ReportRow) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, `{"time":%q,"samples":%d,"value":{`, r.Time, r.Samples)
	first := true
	for _, f := range r.Fields {
		v, ok := r.Values[f]
		if !ok {
			continue
		}
		if !first {
			b.WriteByte(',')
		}
		first = false
		key, _ := json.Marshal(f)
		num, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(num)
	}
	b.WriteString("}}")
	return b.Bytes(), nil
}

// BuildReport averages points into at most reportBuckets rows across [start, end]
func BuildReport(fields []string, points []snapshot.Point, start, end time.Time) []ReportRow {
	span := end.Sub(start)
	if span <= 0 || len(points) == 0 {
		return []ReportRow{}
	}
	step := span / reportBuckets
	if step < time.Second {
		step = time.Second
	}

	type bucket struct {
		sums   map[string]float64
		counts map[string]int
		n      int
	}
	buckets := map[int]*bucket{}
	var order []int
	for _, p := range points {
		if p.Time.Before(start) || p.Time.After(end) {
			continue
		}
		i := int(p.Time.Sub(start) / step)
		// end itself belongs to the last bucket
		if i >= reportBuckets {
			i = reportBuckets - 1
		}
		b, ok := buckets[i]
		if !ok {
			b = &bucket{sums: map[string]float64{}, counts: map[string]int{}}
			buckets[i] = b
			order = append(order, i)
		}
		b.n++
		for k, v := range p.Value {
			b.sums[k] += v
			b.counts[k]++
		}
	}

	rows := make([]ReportRow, 0, len(order))
	for _, i := range order {
		b := buckets[i]
		values := make(map[string]float64, len(b.sums))
		for k, sum := range b.sums {
			values[k] = round(sum/float64(b.counts[k]), 2)
		}
		rows = append(rows, ReportRow{
			Time:    start.Add(time.Duration(i) * step).Format(time.RFC3339),
			Samples: b.n,
			Fields:  fields,
			Values:  values,
		})
	}
	return rows
}
