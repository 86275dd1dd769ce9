package monitop

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jondoveston/monitop/internal/charts"
	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/prefs"
	"github.com/jondoveston/monitop/internal/snapshot"
	"github.com/jondoveston/monitop/internal/telemetry"
)

var testNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

const testMetrics = `{
	"core_statistics": {"goroutines": 42, "uptime": "3.50 h", "requests": 4, "total_duration": "5000ms"},
	"load_statistics": {"overall_load_of_service": "12.5%", "service_cpu_load": "3.2%", "service_memory_load": "4%", "system_cpu_load": "40%", "system_memory_load": "60%"},
	"cpu_statistics": {"total_cores": 8, "cores_used_by_service": 0.25, "cores_used_by_service_in_percent": "3.12%", "cores_used_by_system": 3},
	"memory_statistics": {"memory_used_by_service": 2048.5, "mem_stats_records": [{"record_name": "HeapAlloc", "record_value": 10}]},
	"overall_health": {"overall_health_percent": "85.2%", "health": {"healthy": true, "message": "all good"}}
}`

type fakeSource struct {
	infoCalls    int
	metricsUnits []string
	metricsErr   error
	goroutines   int
	history      []client.HistoryRequest
	reports      []client.ReportRequest
	functions    int
	details      [][2]string
}

func (f *fakeSource) ServiceInfo(context.Context) (*client.ServiceInfo, error) {
	f.infoCalls++
	return &client.ServiceInfo{ServiceName: "orders", GoVersion: "go1.25", ServiceStartTime: testNow.Add(-time.Hour), ProcessID: 4242}, nil
}

func (f *fakeSource) Metrics(_ context.Context, unit string) (*snapshot.Snapshot, error) {
	f.metricsUnits = append(f.metricsUnits, unit)
	if f.metricsErr != nil {
		return nil, f.metricsErr
	}
	return snapshot.Decode(strings.NewReader(testMetrics), unit, testNow)
}

func (f *fakeSource) GoRoutines(context.Context) (*client.GoRoutinesStats, error) {
	f.goroutines++
	return &client.GoRoutinesStats{
		NumberOfGoroutines: 2,
		StackView:          []string{"goroutine 1 [running]:\nmain.main()", "goroutine 7 [select]:\nmain.worker()"},
	}, nil
}

func (f *fakeSource) ServiceMetrics(_ context.Context, req client.HistoryRequest) ([]snapshot.Point, error) {
	f.history = append(f.history, req)
	values := map[string]float64{}
	for i, field := range req.FieldNames {
		values[field] = float64(i + 1)
	}
	return []snapshot.Point{
		{Time: testNow.Add(-time.Minute), Value: values},
		{Time: testNow, Value: values},
	}, nil
}

func (f *fakeSource) Reports(_ context.Context, req client.ReportRequest) ([]client.ReportRow, error) {
	f.reports = append(f.reports, req)
	var rows []client.ReportRow
	err := json.Unmarshal([]byte(`[{"time": "10:00", "samples": 3, "value": {"total_cores": 8}}]`), &rows)
	return rows, err
}

func (f *fakeSource) Functions(context.Context) (client.Functions, error) {
	f.functions++
	return client.Functions{
		"main.handler": {LastRanAt: "2026-03-01T09:59:00Z"},
		"main.compute": {LastRanAt: "2026-03-01T09:58:00Z"},
	}, nil
}

func (f *fakeSource) FunctionDetails(_ context.Context, name, reportType string) (*client.FunctionDetails, error) {
	f.details = append(f.details, [2]string{name, reportType})
	d := &client.FunctionDetails{CodeTrace: name + " " + reportType}
	d.CoreProfile.CPUProfile = "flat 10ms"
	return d, nil
}

// harness drives a model the way the bubbletea runtime would, minus the clock:
// commands run synchronously and tick chains are collected instead of delivered
type harness struct {
	t     *testing.T
	m     dashboardModel
	src   *fakeSource
	ticks []tickMsg
	msgs  []tea.Msg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	src := &fakeSource{}
	cfg.Source = src
	cfg.Logger = logr.Discard()
	cfg.Location = time.UTC
	cfg.Now = func() time.Time { return testNow }

	m := NewDashboard(context.Background(), cfg)
	m.tick = func(gen uint64) tea.Cmd {
		return func() tea.Msg { return tickMsg{gen: gen} }
	}
	return &harness{t: t, m: *m, src: src}
}

func (h *harness) run(cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	switch msg := cmd().(type) {
	case nil:
	case tea.BatchMsg:
		for _, c := range msg {
			h.run(c)
		}
	case tickMsg:
		h.ticks = append(h.ticks, msg)
	default:
		h.send(msg)
	}
}

func (h *harness) send(msg tea.Msg) {
	h.msgs = append(h.msgs, msg)
	next, cmd := h.m.Update(msg)
	h.m = next.(dashboardModel)
	h.run(cmd)
}

func (h *harness) init() {
	h.run(h.m.Init())
}

func (h *harness) key(keys ...string) {
	for _, k := range keys {
		switch k {
		case "tab":
			h.send(tea.KeyMsg{Type: tea.KeyTab})
		case "ctrl+c":
			h.send(tea.KeyMsg{Type: tea.KeyCtrlC})
		default:
			h.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		}
	}
}

// advance delivers n one-second ticks on the current chain
func (h *harness) advance(n int) {
	for i := 0; i < n; i++ {
		h.send(tickMsg{gen: h.m.countdown.Generation()})
	}
}

func TestInitFetchesImmediately(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()

	assert.Equal(t, 1, h.src.infoCalls)
	assert.Equal(t, []string{prefs.UnitKB}, h.src.metricsUnits)
	require.NotNil(t, h.m.snap)
	require.NotNil(t, h.m.info)
	assert.Equal(t, "orders", h.m.info.ServiceName)
	assert.True(t, h.m.loadChart.Configured())
	assert.True(t, h.m.healthGauge.Configured())
	assert.Len(t, h.ticks, 1)
}

func TestCountdownFiresOncePerInterval(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Prefs{RefreshInterval: 1, SelectedUnit: prefs.UnitKB}})
	h.init()
	require.Len(t, h.src.metricsUnits, 1)

	h.advance(59)
	assert.Len(t, h.src.metricsUnits, 1)
	assert.Equal(t, "Refreshing in 0m 1s", h.m.countdown.Display())

	h.advance(1)
	assert.Len(t, h.src.metricsUnits, 2)
	assert.Equal(t, "Refreshing in 1m 0s", h.m.countdown.Display())

	// the service identity is cached between scheduled fires
	assert.Equal(t, 1, h.src.infoCalls)
}

func TestIntervalChangeAbandonsOldChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store := prefs.NewStore(path, logr.Discard())
	h := newHarness(t, Config{Prefs: prefs.Prefs{RefreshInterval: 5, SelectedUnit: prefs.UnitKB}, Store: store})
	h.init()
	oldGen := h.m.countdown.Generation()

	h.key("+")
	assert.Equal(t, 6, h.m.prefs.RefreshInterval)
	assert.Equal(t, 6*time.Minute, h.m.countdown.Remaining())
	assert.NotEqual(t, oldGen, h.m.countdown.Generation())
	// changing the interval does not fetch
	assert.Len(t, h.src.metricsUnits, 1)

	// the abandoned chain can tick forever without firing
	for i := 0; i < 400; i++ {
		h.send(tickMsg{gen: oldGen})
	}
	assert.Len(t, h.src.metricsUnits, 1)
	assert.Equal(t, 6*time.Minute, h.m.countdown.Remaining())

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 6, saved.RefreshInterval)

	h.advance(6 * 60)
	assert.Len(t, h.src.metricsUnits, 2)
}

func TestIntervalIsClamped(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Prefs{RefreshInterval: 1, SelectedUnit: prefs.UnitKB}})
	h.init()
	gen := h.m.countdown.Generation()

	h.key("-")
	assert.Equal(t, 1, h.m.prefs.RefreshInterval)
	assert.Equal(t, gen, h.m.countdown.Generation())
}

func TestUnitToggle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store := prefs.NewStore(path, logr.Discard())
	h := newHarness(t, Config{Prefs: prefs.Default(), Store: store})
	h.init()

	h.key("u")
	assert.Equal(t, []string{prefs.UnitKB, prefs.UnitMB}, h.src.metricsUnits)
	require.NotNil(t, h.m.snap)
	assert.Equal(t, prefs.UnitMB, h.m.snap.Unit)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, prefs.UnitMB, saved.SelectedUnit)

	h.key("u")
	assert.Equal(t, prefs.UnitKB, h.m.prefs.SelectedUnit)
}

func TestFetchErrorKeepsContent(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()
	h.send(tea.WindowSizeMsg{Width: 140, Height: 50})
	before := h.m.snap

	h.src.metricsErr = errors.New("connection refused")
	h.key("r")

	assert.Same(t, before, h.m.snap)
	assert.Equal(t, "metrics: connection refused", h.m.lastErr)
	view := h.m.View()
	assert.Contains(t, view, "connection refused")
	assert.Contains(t, view, "42")

	h.src.metricsErr = nil
	h.key("r")
	assert.Empty(t, h.m.lastErr)
}

func TestCancelledFetchIsSilent(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()

	h.src.metricsErr = context.Canceled
	h.key("r")
	assert.Empty(t, h.m.lastErr)
	assert.NotNil(t, h.m.snap)
}

func TestStaleResponseDropped(t *testing.T) {
	metrics := telemetry.New()
	h := newHarness(t, Config{Prefs: prefs.Default(), Telemetry: metrics})
	h.init()

	// two unit toggles in flight, the first one answered last
	next, first := h.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("u")})
	h.m = next.(dashboardModel)
	next, second := h.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("u")})
	h.m = next.(dashboardModel)

	h.run(second)
	require.NotNil(t, h.m.snap)
	assert.Equal(t, prefs.UnitKB, h.m.snap.Unit)

	h.run(first)
	assert.Equal(t, prefs.UnitKB, h.m.snap.Unit)

	expected := `
# HELP monitop_stale_responses_total Responses dropped because a newer request replaced them.
# TYPE monitop_stale_responses_total counter
monitop_stale_responses_total{endpoint="metrics"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(metrics.Registry(), strings.NewReader(expected), "monitop_stale_responses_total"))
}

func TestRefreshKeyClearsServiceInfoCache(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()
	gen := h.m.countdown.Generation()

	h.advance(30)
	h.key("r")

	assert.Equal(t, 2, h.src.infoCalls)
	assert.Len(t, h.src.metricsUnits, 2)
	assert.NotEqual(t, gen, h.m.countdown.Generation())
	assert.Equal(t, 5*time.Minute, h.m.countdown.Remaining())
}

func TestGoroutinesTab(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()
	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})

	h.key("tab")
	assert.Equal(t, tabGoroutines, h.m.selectedTab)
	assert.Equal(t, 1, h.src.goroutines)
	require.Len(t, h.src.history, 1)
	assert.Equal(t, charts.GoroutineGroup.Fields, h.src.history[0].FieldNames)
	assert.Equal(t, GOROUTINE_HISTORY_RANGE, h.src.history[0].TimeRange)
	assert.True(t, h.m.goroutineChart.Configured())

	h.key("j", "j")
	assert.Equal(t, 1, h.m.stackOffset)
	assert.Contains(t, h.m.View(), "Stack 2 of 2")

	// a scheduled fire refreshes the visible tab too
	h.advance(5 * 60)
	assert.Equal(t, 2, h.src.goroutines)
}

func TestHistoryTab(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()

	h.key("3")
	require.Len(t, h.src.history, 1)
	assert.Equal(t, charts.HistoryGroups[0].Fields, h.src.history[0].FieldNames)
	assert.Equal(t, "5m", h.src.history[0].TimeRange)
	assert.True(t, h.m.historyChart.Configured())

	h.key("]")
	assert.Equal(t, charts.HistoryGroups[1].Fields, h.src.history[1].FieldNames)

	h.key(".")
	assert.Equal(t, "15m", h.src.history[2].TimeRange)

	h.key("[", "[")
	last := h.src.history[len(h.src.history)-1]
	assert.Equal(t, charts.HistoryGroups[len(charts.HistoryGroups)-1].Fields, last.FieldNames)
	assert.Equal(t, "15m", last.TimeRange)
}

func TestReportsTab(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()
	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})

	h.key("4")
	require.Len(t, h.src.reports, 1)
	assert.Equal(t, "LoadStatistics", h.src.reports[0].Topic)
	assert.Equal(t, "5m", h.src.reports[0].TimeFrame)
	assert.Equal(t, []string{"TIME", "SAMPLES", "TOTAL CORES"}, h.m.report.Headers)
	assert.Contains(t, h.m.View(), "TOTAL CORES")

	h.key("]", ",")
	last := h.src.reports[len(h.src.reports)-1]
	assert.Equal(t, "CPUStatistics", last.Topic)
	assert.Equal(t, client.ReportFrames[len(client.ReportFrames)-1], last.TimeFrame)
}

func TestFunctionsTab(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()
	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})

	h.key("5")
	assert.Equal(t, 1, h.src.functions)
	require.Len(t, h.src.details, 1)
	assert.Equal(t, [2]string{"main.compute", "text"}, h.src.details[0])

	h.key("j")
	assert.Equal(t, [2]string{"main.handler", "text"}, h.src.details[1])

	h.key("]")
	assert.Equal(t, [2]string{"main.handler", "traces"}, h.src.details[2])

	view := h.m.View()
	assert.Contains(t, view, "main.handler traces")
	assert.Contains(t, view, "orders")

	// already at the bottom
	h.key("j")
	assert.Len(t, h.src.details, 3)
}

func TestExternalPrefsChange(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()

	h.send(prefsMsg(prefs.Prefs{RefreshInterval: 2, SelectedUnit: prefs.UnitMB}))
	assert.Equal(t, 2, h.m.countdown.Interval())
	assert.Equal(t, 2*time.Minute, h.m.countdown.Remaining())
	assert.Equal(t, []string{prefs.UnitKB, prefs.UnitMB}, h.src.metricsUnits)

	// the same prefs again change nothing
	h.send(prefsMsg(prefs.Prefs{RefreshInterval: 2, SelectedUnit: prefs.UnitMB}))
	assert.Len(t, h.src.metricsUnits, 2)
}

// press delivers a key without running the command it returns
func (h *harness) press(k string) tea.Cmd {
	next, cmd := h.m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
	h.m = next.(dashboardModel)
	return cmd
}

func TestOwnSavesDoNotRevertInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store := prefs.NewStore(path, logr.Discard())
	h := newHarness(t, Config{Prefs: prefs.Prefs{RefreshInterval: 5, SelectedUnit: prefs.UnitKB}, Store: store})
	h.init()

	first := h.press("+")
	second := h.press("+")
	assert.Equal(t, 7, h.m.prefs.RefreshInterval)
	gen := h.m.countdown.Generation()

	// the first save finishes after the second
	h.run(second)
	h.run(first)

	saved, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, saved.RefreshInterval)

	// the watcher reports the file back
	h.send(prefsMsg(saved))
	assert.Equal(t, 7, h.m.prefs.RefreshInterval)
	assert.Equal(t, gen, h.m.countdown.Generation())
	assert.Equal(t, 7*time.Minute, h.m.countdown.Remaining())
	assert.Empty(t, h.m.lastErr)
}

func TestLateEchoOfOwnSaveIgnored(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	store := prefs.NewStore(path, logr.Discard())
	h := newHarness(t, Config{Prefs: prefs.Prefs{RefreshInterval: 5, SelectedUnit: prefs.UnitKB}, Store: store})
	h.init()

	h.key("+", "+")
	gen := h.m.countdown.Generation()

	// a reload that raced the second save still sees the first value
	h.send(prefsMsg(prefs.Prefs{RefreshInterval: 6, SelectedUnit: prefs.UnitKB}))
	assert.Equal(t, 7, h.m.prefs.RefreshInterval)
	assert.Equal(t, gen, h.m.countdown.Generation())

	// another dashboard still gets through
	h.send(prefsMsg(prefs.Prefs{RefreshInterval: 3, SelectedUnit: prefs.UnitKB}))
	assert.Equal(t, 3, h.m.prefs.RefreshInterval)
	assert.Equal(t, 3*time.Minute, h.m.countdown.Remaining())
}

func TestViewBeforeData(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	assert.Equal(t, "Initializing...", h.m.View())

	h.send(tea.WindowSizeMsg{Width: 120, Height: 40})
	view := h.m.View()
	assert.Contains(t, view, "N/A")
	assert.Contains(t, view, "Refreshing in 5m 0s")
}

func TestHelpOverlay(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()
	h.send(tea.WindowSizeMsg{Width: 140, Height: 50})

	h.key("?")
	assert.Contains(t, h.m.View(), "Number of goroutines that are currently running")

	// keys other than close and quit are swallowed
	h.key("tab")
	assert.Equal(t, tabDashboard, h.m.selectedTab)

	h.send(tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, h.m.showHelp)
}

func TestQuit(t *testing.T) {
	h := newHarness(t, Config{Prefs: prefs.Default()})
	h.init()

	h.key("q")
	assert.Contains(t, h.msgs, tea.Msg(tea.QuitMsg{}))
}
