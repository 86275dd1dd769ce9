package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/jondoveston/monitop/internal/snapshot"
)

// ExportPrefix starts every exported metric name
const ExportPrefix = "monigo_"

// SnapshotFamilies turns the numeric leaves of snap into gauges, one family per
// leaf. Percent strings export their number; other strings are skipped.
func SnapshotFamilies(snap *snapshot.Snapshot, labels map[string]string) []*dto.MetricFamily {
	var pairs []*dto.LabelPair
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pairs = append(pairs, &dto.LabelPair{Name: proto.String(name), Value: proto.String(labels[name])})
	}

	var families []*dto.MetricFamily
	for _, entry := range snap.Flatten() {
		value, ok := exportValue(entry.Value)
		if !ok {
			continue
		}
		families = append(families, &dto.MetricFamily{
			Name: proto.String(MetricName(entry.Path)),
			Help: proto.String(fmt.Sprintf("%s from the %s category.", entry.Path, entry.Category)),
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Label: pairs,
				Gauge: &dto.Gauge{Value: proto.Float64(value)},
			}},
		})
	}
	return families
}

// WriteSnapshot writes snap in the Prometheus text format
func WriteSnapshot(w io.Writer, snap *snapshot.Snapshot, labels map[string]string) error {
	for _, mf := range SnapshotFamilies(snap, labels) {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// MetricName maps a snapshot path onto a valid metric name,
// "cpu_statistics.total_cores" -> "monigo_cpu_statistics_total_cores"
func MetricName(path string) string {
	var b strings.Builder
	b.WriteString(ExportPrefix)
	for _, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

func exportValue(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(t)
		if !strings.HasSuffix(s, "%") {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
