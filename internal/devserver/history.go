package devserver

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nakabonne/tstorage"

	"github.com/jondoveston/monitop/internal/snapshot"
)

// DefaultRetention is how long samples are kept
const DefaultRetention = 7 * 24 * time.Hour

var hostLabel = []tstorage.Label{{Name: "host", Value: "devserver"}}

// History stores samples in a tstorage database, one metric per field
type History struct {
	storage tstorage.Storage
}

// NewHistory opens the store. An empty dataPath keeps everything in memory.
func NewHistory(dataPath string, retention time.Duration) (*History, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Seconds),
		tstorage.WithRetention(retention),
	}
	if dataPath != "" {
		opts = append(opts, tstorage.WithDataPath(dataPath))
	}
	storage, err := tstorage.NewStorage(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open history storage: %w", err)
	}
	return &History{storage: storage}, nil
}

// Record stores values at the given time
func (h *History) Record(at time.Time, values map[string]float64) error {
	rows := make([]tstorage.Row, 0, len(values))
	for field, v := range values {
		rows = append(rows, tstorage.Row{
			Metric:    field,
			Labels:    hostLabel,
			DataPoint: tstorage.DataPoint{Timestamp: at.Unix(), Value: v},
		})
	}
	if err := h.storage.InsertRows(rows); err != nil {
		return fmt.Errorf("failed to store sample: %w", err)
	}
	return nil
}

// Query returns the stored values of fields between start and end inclusive,
// one point per sample time in ascending order
func (h *History) Query(fields []string, start, end time.Time) ([]snapshot.Point, error) {
	byTime := map[int64]map[string]float64{}
	for _, field := range fields {
		// the end of a select is exclusive
		points, err := h.storage.Select(field, hostLabel, start.Unix(), end.Unix()+1)
		if errors.Is(err, tstorage.ErrNoDataPoints) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select %s: %w", field, err)
		}
		for _, p := range points {
			if byTime[p.Timestamp] == nil {
				byTime[p.Timestamp] = map[string]float64{}
			}
			byTime[p.Timestamp][field] = p.Value
		}
	}

	times := make([]int64, 0, len(byTime))
	for ts := range byTime {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	out := make([]snapshot.Point, 0, len(times))
	for _, ts := range times {
		out = append(out, snapshot.Point{Time: time.Unix(ts, 0), Value: byTime[ts]})
	}
	return out, nil
}

// Close flushes and closes the store
func (h *History) Close() error {
	return h.storage.Close()
}
