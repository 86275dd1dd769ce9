package devserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jondoveston/monitop/internal/snapshot"
)

func TestHistoryQuery(t *testing.T) {
	h, err := NewHistory("", 0)
	require.NoError(t, err)
	defer h.Close()

	t0 := time.Now().Truncate(time.Second).Add(-time.Minute)
	require.NoError(t, h.Record(t0, map[string]float64{"heap_alloc": 10, "heap_sys": 20}))
	require.NoError(t, h.Record(t0.Add(10*time.Second), map[string]float64{"heap_alloc": 11}))

	points, err := h.Query([]string{"heap_alloc", "heap_sys", "never_written"}, t0, t0.Add(10*time.Second))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.True(t, points[0].Time.Equal(t0))
	assert.Equal(t, map[string]float64{"heap_alloc": 10, "heap_sys": 20}, points[0].Value)
	assert.Equal(t, map[string]float64{"heap_alloc": 11}, points[1].Value)
}

func TestBuildReport(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	fields := []string{"b", "a"}

	points := []snapshot.Point{
		{Time: start.Add(time.Minute), Value: map[string]float64{"a": 1, "b": 10}},
		{Time: start.Add(2 * time.Minute), Value: map[string]float64{"a": 3, "b": 20}},
		{Time: start.Add(50 * time.Minute), Value: map[string]float64{"a": 5}},
		{Time: end.Add(time.Minute), Value: map[string]float64{"a": 100}},
	}

	rows := BuildReport(fields, points, start, end)
	require.Len(t, rows, 2)
	assert.Equal(t, 2, rows[0].Samples)
	assert.Equal(t, map[string]float64{"a": 2, "b": 15}, rows[0].Values)
	assert.Equal(t, "2024-03-01T12:00:00Z", rows[0].Time)
	assert.Equal(t, "2024-03-01T12:50:00Z", rows[1].Time)

	data, err := rows[0].MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"time":"2024-03-01T12:00:00Z","samples":2,"value":{"b":15,"a":2}}`, string(data))
	assert.Contains(t, string(data), `"value":{"b":15,"a":2}`)
}

func TestBuildReportBuckets(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	var everyMinute []snapshot.Point
	for at := start; !at.After(end); at = at.Add(time.Minute) {
		everyMinute = append(everyMinute, snapshot.Point{Time: at, Value: map[string]float64{"a": 1}})
	}

	tests := []struct {
		name     string
		points   []snapshot.Point
		wantRows int
		wantLast string
	}{
		{"at start", []snapshot.Point{{Time: start, Value: map[string]float64{"a": 1}}}, 1, "2024-03-01T12:00:00Z"},
		{"at end", []snapshot.Point{{Time: end, Value: map[string]float64{"a": 1}}}, 1, "2024-03-01T12:55:00Z"},
		{"whole range", everyMinute, reportBuckets, "2024-03-01T12:55:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := BuildReport([]string{"a"}, tt.points, start, end)
			require.Len(t, rows, tt.wantRows)
			assert.Equal(t, tt.wantLast, rows[len(rows)-1].Time)
		})
	}
}

func TestBuildReportEmpty(t *testing.T) {
	now := time.Now()
	assert.Empty(t, BuildReport([]string{"a"}, nil, now.Add(-time.Hour), now))
}

func TestHealthScores(t *testing.T) {
	s := Sample{
		Host:    HostStats{CPUPercent: 40, MemPercent: 60},
		Process: ProcessStats{CPUPercent: 19, MemPercent: 9.5},
	}
	assert.Equal(t, 50.0, s.SystemHealth())
	assert.InDelta(t, 100-(20+10)/3.0, s.ServiceHealth(), 0.001)
	assert.Equal(t, "[Fair] Functional, time to check those resources.", healthMessage(55))
}
