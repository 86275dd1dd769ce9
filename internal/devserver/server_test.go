package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/render"
	"github.com/jondoveston/monitop/internal/snapshot"
)

const gib = 1 << 30

type fakeProbe struct {
	host HostStats
	proc ProcessStats
	err  error
}

func (f *fakeProbe) Host(context.Context) (HostStats, error)       { return f.host, f.err }
func (f *fakeProbe) Process(context.Context) (ProcessStats, error) { return f.proc, f.err }

func newFakeProbe() *fakeProbe {
	return &fakeProbe{
		host: HostStats{
			PhysicalCores: 4,
			LogicalCores:  8,
			CPUPercent:    40,
			MemTotal:      16 * gib,
			MemUsed:       8 * gib,
			MemAvailable:  8 * gib,
			MemPercent:    60,
		},
		proc: ProcessStats{CPUPercent: 25, RSS: 64 << 20, MemPercent: 10},
	}
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, opts Options) (*Server, *client.Client) {
	t.Helper()
	if opts.Probe == nil {
		opts.Probe = newFakeProbe()
	}
	opts.Logger = logr.Discard()
	s, err := New(opts)
	require.NoError(t, err)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	c, err := client.New(srv.URL)
	require.NoError(t, err)
	return s, c
}

func TestServiceInfo(t *testing.T) {
	_, c := newTestServer(t, Options{ServiceName: "orders"})

	info, err := c.ServiceInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "orders", info.ServiceName)
	assert.Equal(t, os.Getpid(), info.ProcessID)
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
	assert.WithinDuration(t, time.Now(), info.ServiceStartTime, time.Minute)
}

func TestMetricsPayload(t *testing.T) {
	_, c := newTestServer(t, Options{})

	snap, err := c.Metrics(context.Background(), "MB")
	require.NoError(t, err)

	total, ok := snap.Float("cpu_statistics.total_cores")
	require.True(t, ok)
	assert.Equal(t, 4.0, total)

	used, ok := snap.Float("cpu_statistics.cores_used_by_service")
	require.True(t, ok)
	assert.Equal(t, 2.0, used)

	load, ok := snap.String("load_statistics.service_cpu_load")
	require.True(t, ok)
	assert.Equal(t, "25.00%", load)

	overall, ok := snap.String("load_statistics.overall_load_of_service")
	require.True(t, ok)
	assert.Equal(t, "17.50%", overall)

	mem, ok := snap.Float("memory_statistics.total_system_memory")
	require.True(t, ok)
	assert.Equal(t, 16384.0, mem)

	system, ok := snap.Float(snapshot.HealthCategory + ".system_health_percent")
	require.True(t, ok)
	assert.Equal(t, 50.0, system)

	names := map[string]bool{}
	for _, r := range snap.Records("memory_statistics.mem_stats_records") {
		names[r.Name] = true
	}
	for _, name := range []string{"HeapAlloc", "HeapSys", "HeapIdle", "HeapInuse", "HeapReleased"} {
		assert.True(t, names[name], name)
	}

	// every dashboard cell has a value
	for _, cell := range render.Render(snap, render.DashboardFields, render.Env{Unit: "MB"}) {
		assert.NotEqual(t, render.NotAvailable, cell.Value, cell.ID)
	}
}

func TestMetricsUnit(t *testing.T) {
	_, c := newTestServer(t, Options{})

	snap, err := c.Metrics(context.Background(), "KB")
	require.NoError(t, err)
	mem, ok := snap.Float("memory_statistics.total_system_memory")
	require.True(t, ok)
	assert.Equal(t, 16.0*1024*1024, mem)
}

func TestMetricsProbeError(t *testing.T) {
	probe := newFakeProbe()
	probe.err = errors.New("no /proc")
	_, c := newTestServer(t, Options{Probe: probe})

	_, err := c.Metrics(context.Background(), "MB")
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestGoRoutines(t *testing.T) {
	_, c := newTestServer(t, Options{})

	stats, err := c.GoRoutines(context.Background())
	require.NoError(t, err)
	assert.Positive(t, stats.NumberOfGoroutines)
	require.NotEmpty(t, stats.StackView)
	assert.True(t, strings.HasPrefix(stats.StackView[0], "goroutine "))
}

func TestServiceMetrics(t *testing.T) {
	s, c := newTestServer(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Sample(ctx))

	req, err := client.NewHistoryRequest([]string{"goroutines", "heap_alloc"}, "5m", time.Now().Add(time.Second))
	require.NoError(t, err)
	points, err := c.ServiceMetrics(ctx, req)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Contains(t, points[0].Value, "goroutines")
	assert.Contains(t, points[0].Value, "heap_alloc")
}

func TestServiceMetricsBadRange(t *testing.T) {
	_, c := newTestServer(t, Options{})

	_, err := c.ServiceMetrics(context.Background(), client.HistoryRequest{
		FieldNames: []string{"goroutines"},
		StartTime:  "yesterday",
		EndTime:    "today",
	})
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestReports(t *testing.T) {
	history, err := NewHistory("", 0)
	require.NoError(t, err)
	_, c := newTestServer(t, Options{History: history})

	now := time.Now().Truncate(time.Second)
	require.NoError(t, history.Record(now.Add(-2*time.Minute), map[string]float64{
		"total_cores": 4, "cores_used_by_service": 1, "cores_used_by_system": 3,
	}))
	require.NoError(t, history.Record(now.Add(-2*time.Minute+time.Second), map[string]float64{
		"total_cores": 4, "cores_used_by_service": 2, "cores_used_by_system": 3,
	}))

	req, err := client.NewReportRequest("CPUStatistics", "1h", now)
	require.NoError(t, err)
	rows, err := c.Reports(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	table := render.ReportTable(rows)
	assert.Equal(t, []string{"TIME", "SAMPLES", "TOTAL CORES", "CORES USED BY SERVICE", "CORES USED BY SYSTEM"}, table.Headers)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, []string{"2", "4", "1.5", "3"}, table.Rows[0][1:])
}

func TestReportsUnknownTopic(t *testing.T) {
	_, c := newTestServer(t, Options{})

	req, err := client.NewReportRequest("DiskStatistics", "1h", time.Now())
	require.NoError(t, err)
	_, err = c.Reports(context.Background(), req)
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestFunctions(t *testing.T) {
	s, c := newTestServer(t, Options{})
	ctx := context.Background()

	require.NoError(t, s.Sample(ctx))

	fns, err := c.Functions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"devserver.Sample"}, fns.Names())

	details, err := c.FunctionDetails(ctx, "devserver.Sample", ReportText)
	require.NoError(t, err)
	assert.Contains(t, details.CodeTrace, "calls: 1")
	assert.Contains(t, details.CoreProfile.CPUProfile, "calls: 1")

	tree, err := c.FunctionDetails(ctx, "devserver.Sample", ReportTree)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(tree.CodeTrace), "devserver.Sample"))

	_, err = c.FunctionDetails(ctx, "missing", ReportText)
	var statusErr *client.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestRateLimit(t *testing.T) {
	_, c := newTestServer(t, Options{RateLimit: 1})

	var limited bool
	for i := 0; i < 10; i++ {
		_, err := c.ServiceInfo(context.Background())
		var statusErr *client.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	assert.True(t, limited)
}

func TestRunStopsOnCancel(t *testing.T) {
	s, err := New(Options{Probe: newFakeProbe(), SampleInterval: 10 * time.Millisecond, Logger: logr.Discard()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()

	require.Eventually(t, func() bool {
		_, ok := s.Tracer().Functions()["devserver.Sample"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
