package telemetry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jondoveston/monitop/internal/snapshot"
)

func TestObservePoll(t *testing.T) {
	m := New()

	m.ObservePoll("metrics", 10*time.Millisecond, nil)
	m.ObservePoll("metrics", 20*time.Millisecond, nil)
	m.ObservePoll("metrics", time.Second, errors.New("boom"))
	m.ObservePoll("metrics", time.Millisecond, fmt.Errorf("GET metrics: %w", context.Canceled))
	m.ObserveStale("metrics")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.polls.WithLabelValues("metrics", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("metrics", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.polls.WithLabelValues("metrics", OutcomeCancelled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stale.WithLabelValues("metrics")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePoll("service-info", time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `monitop_polls_total{endpoint="service-info",outcome="ok"} 1`)
}

func TestWriteSnapshot(t *testing.T) {
	snap, err := snapshot.Decode(strings.NewReader(`{
		"core_statistics": {"goroutines": 12, "uptime": "3.50 h"},
		"load_statistics": {"overall_load_of_service": "12.5%"},
		"overall_health": {"health": {"healthy": true}},
		"memory_statistics": {"mem_stats_records": [{"record_name": "HeapAlloc", "record_value": 1}]}
	}`), "KB", time.Now())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, snap, map[string]string{"service": "orders"}))
	out := buf.String()

	assert.Contains(t, out, "# TYPE monigo_core_statistics_goroutines gauge")
	assert.Contains(t, out, `monigo_core_statistics_goroutines{service="orders"} 12`)
	assert.Contains(t, out, `monigo_load_statistics_overall_load_of_service{service="orders"} 12.5`)
	assert.Contains(t, out, `monigo_overall_health_health_healthy{service="orders"} 1`)
	assert.NotContains(t, out, "uptime")
	assert.NotContains(t, out, "mem_stats_records")
}

func TestMetricName(t *testing.T) {
	assert.Equal(t, "monigo_cpu_statistics_total_cores", MetricName("cpu_statistics.total_cores"))
	assert.Equal(t, "monigo_misc_heap_alloc_by_service", MetricName("misc.heap-alloc by.service"))
}
