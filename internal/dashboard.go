package monitop

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-logr/logr"

	"github.com/jondoveston/monitop/internal/charts"
	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/poll"
	"github.com/jondoveston/monitop/internal/prefs"
	"github.com/jondoveston/monitop/internal/render"
	"github.com/jondoveston/monitop/internal/schedule"
	"github.com/jondoveston/monitop/internal/snapshot"
	"github.com/jondoveston/monitop/internal/telemetry"
)

type tab int

const (
	tabDashboard tab = iota
	tabGoroutines
	tabHistory
	tabReports
	tabFunctions
)

var tabNames = []string{"Dashboard", "Goroutines", "History", "Reports", "Functions"}

// Guard keys, one per kind of request
const (
	keyServiceInfo      = client.EndpointServiceInfo
	keyMetrics          = client.EndpointMetrics
	keyGoroutines       = client.EndpointGoRoutines
	keyGoroutineHistory = "goroutine-history"
	keyHistory          = client.EndpointServiceMetrics
	keyReports          = client.EndpointReports
	keyFunctions        = client.EndpointFunctions
	keyFunctionDetails  = client.EndpointFunctionDetails
)

// FunctionReportTypes are the detail views of a traced function
var FunctionReportTypes = []string{"text", "traces", "tree"}

// Config wires a dashboard
type Config struct {
	Source Source
	Prefs  prefs.Prefs
	// Store persists prefs changes, nil keeps them in memory
	Store *prefs.Store
	// Telemetry counts stale responses, may be nil
	Telemetry *telemetry.Metrics
	Logger    logr.Logger
	Location  *time.Location
	Now       func() time.Time
}

type tickMsg struct {
	gen uint64
}

type fetchedMsg struct {
	ticket poll.Ticket
	value  any
	err    error
}

type prefsMsg prefs.Prefs

type prefsSavedMsg struct {
	err error
}

type historyResult struct {
	group  charts.Group
	points []snapshot.Point
}

type dashboardModel struct {
	ctx       context.Context
	cache     *Cache
	writer    *prefs.Writer
	logger    logr.Logger
	location  *time.Location
	now       func() time.Time
	tick      func(gen uint64) tea.Cmd
	countdown *schedule.Countdown
	guard     *poll.Guard
	prefsCh   <-chan prefs.Prefs
	prefs     prefs.Prefs

	selectedTab tab
	width       int
	height      int
	ready       bool
	showHelp    bool

	info        *client.ServiceInfo
	snap        *snapshot.Snapshot
	goroutines  *client.GoRoutinesStats
	report      render.Table
	reportReady bool
	functions   client.Functions
	details     *client.FunctionDetails

	loadChart      *charts.Handle
	cpuChart       *charts.Handle
	memoryChart    *charts.Handle
	heapChart      *charts.Handle
	healthGauge    *charts.Handle
	goroutineChart *charts.Handle
	historyChart   *charts.Handle
	chartTabs      *TabSet

	historyGroup     int
	historyRange     int
	reportTopic      int
	reportFrame      int
	selectedFunction int
	reportType       int
	stackOffset      int

	lastErr string
	errKey  string
}

func tickCmd(gen uint64) tea.Cmd {
	return tea.Tick(TickDuration(), func(time.Time) tea.Msg {
		return tickMsg{gen: gen}
	})
}

// NewDashboard builds the model. Requests are made under ctx.
func NewDashboard(ctx context.Context, cfg Config) *dashboardModel {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	logger := cfg.Logger.WithName("dashboard")

	var onStale func(string)
	if cfg.Telemetry != nil {
		onStale = cfg.Telemetry.ObserveStale
	}

	m := &dashboardModel{
		ctx:      ctx,
		cache:    &Cache{Source: cfg.Source},
		logger:   logger,
		location: cfg.Location,
		now:      cfg.Now,
		tick:     tickCmd,
		guard:    poll.NewGuard(onStale),
		prefs:    cfg.Prefs.Normalize(),

		loadChart:      charts.NewHandle(charts.KindBar, "Load Statistics"),
		cpuChart:       charts.NewHandle(charts.KindPie, "CPU Statistics"),
		memoryChart:    charts.NewHandle(charts.KindPie, "Memory Distribution"),
		heapChart:      charts.NewHandle(charts.KindBar, "Heap Memory Usage"),
		healthGauge:    charts.NewHandle(charts.KindGauge, "Overall Health"),
		goroutineChart: charts.NewHandle(charts.KindLine, charts.GoroutineGroup.Title),
		historyChart:   charts.NewHandle(charts.KindLine, charts.HistoryGroups[0].Title),
	}
	if cfg.Store != nil {
		m.writer = prefs.NewWriter(cfg.Store)
	}
	m.countdown = schedule.NewCountdown(m.prefs.RefreshInterval)
	m.countdown.OnTransition = func(from, to schedule.State) {
		logger.V(2).Info("countdown", "from", from.String(), "to", to.String())
	}
	m.chartTabs = NewTabSet(
		Chart{Label: "Load", Handle: m.loadChart},
		Chart{Label: "CPU", Handle: m.cpuChart},
		Chart{Label: "Memory", Handle: m.memoryChart},
		Chart{Label: "Heap", Handle: m.heapChart},
	)
	return m
}

func (m dashboardModel) Init() tea.Cmd {
	gen := m.countdown.Start()
	return tea.Batch(m.tick(gen), m.refresh(), m.waitPrefs())
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case tickMsg:
		// a superseded chain stops here
		if msg.gen != m.countdown.Generation() {
			return m, nil
		}
		if m.countdown.Tick(msg.gen) {
			return m, tea.Batch(m.tick(msg.gen), m.refresh())
		}
		return m, m.tick(msg.gen)

	case fetchedMsg:
		return m.handleFetched(msg)

	case prefsMsg:
		return m.handlePrefs(prefs.Prefs(msg))

	case prefsSavedMsg:
		if msg.err != nil {
			m.logger.Error(msg.err, "failed to save prefs")
			m.lastErr, m.errKey = "prefs: "+msg.err.Error(), "prefs"
		}
	}

	return m, nil
}

func (m dashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		switch msg.String() {
		case "esc", "?":
			m.showHelp = false
			return m, nil
		case "ctrl+c", "q":
		default:
			return m, nil
		}
	}

	switch msg.String() {
	case "ctrl+c", "q":
		m.guard.CancelAll()
		return m, tea.Quit

	case "?":
		m.showHelp = true
		return m, nil

	case "r":
		m.cache.clear()
		gen := m.countdown.Reset()
		return m, tea.Batch(m.tick(gen), m.refresh())

	case "u":
		m.prefs.SelectedUnit = prefs.NextUnit(m.prefs.SelectedUnit)
		return m, tea.Batch(m.savePrefs(), m.fetchMetrics())

	case "+", "=":
		return m.setInterval(m.prefs.RefreshInterval + 1)

	case "-", "_":
		return m.setInterval(m.prefs.RefreshInterval - 1)

	case "tab":
		m.selectedTab = (m.selectedTab + 1) % tab(len(tabNames))
		return m, tea.Batch(m.fetchTab()...)

	case "shift+tab":
		m.selectedTab = (m.selectedTab - 1 + tab(len(tabNames))) % tab(len(tabNames))
		return m, tea.Batch(m.fetchTab()...)

	case "1", "2", "3", "4", "5":
		m.selectedTab = tab(msg.String()[0] - '1')
		return m, tea.Batch(m.fetchTab()...)

	case "[", "]":
		step := 1
		if msg.String() == "[" {
			step = -1
		}
		return m.cyclePrimary(step)

	case ",", ".":
		step := 1
		if msg.String() == "," {
			step = -1
		}
		return m.cycleSecondary(step)

	case "up", "k":
		return m.moveSelection(-1)

	case "down", "j":
		return m.moveSelection(1)
	}
	return m, nil
}

func (m dashboardModel) cyclePrimary(step int) (tea.Model, tea.Cmd) {
	switch m.selectedTab {
	case tabDashboard:
		if step > 0 {
			m.chartTabs.NextTab()
		} else {
			m.chartTabs.PrevTab()
		}
	case tabHistory:
		m.historyGroup = wrap(m.historyGroup+step, len(charts.HistoryGroups))
		return m, m.fetchHistory()
	case tabReports:
		m.reportTopic = wrap(m.reportTopic+step, len(render.ReportTopics))
		return m, m.fetchReports()
	case tabFunctions:
		m.reportType = wrap(m.reportType+step, len(FunctionReportTypes))
		return m, m.fetchFunctionDetails()
	}
	return m, nil
}

func (m dashboardModel) cycleSecondary(step int) (tea.Model, tea.Cmd) {
	switch m.selectedTab {
	case tabHistory:
		m.historyRange = wrap(m.historyRange+step, len(client.HistoryRanges))
		return m, m.fetchHistory()
	case tabReports:
		m.reportFrame = wrap(m.reportFrame+step, len(client.ReportFrames))
		return m, m.fetchReports()
	}
	return m, nil
}

func (m dashboardModel) moveSelection(step int) (tea.Model, tea.Cmd) {
	switch m.selectedTab {
	case tabGoroutines:
		if m.goroutines != nil {
			m.stackOffset = clamp(m.stackOffset+step, 0, len(m.goroutines.StackView)-1)
		}
	case tabFunctions:
		names := m.functions.Names()
		if len(names) == 0 {
			return m, nil
		}
		next := clamp(m.selectedFunction+step, 0, len(names)-1)
		if next != m.selectedFunction {
			m.selectedFunction = next
			m.details = nil
			return m, m.fetchFunctionDetails()
		}
	}
	return m, nil
}

// setInterval restarts the countdown at the new interval without fetching
func (m dashboardModel) setInterval(minutes int) (tea.Model, tea.Cmd) {
	minutes = schedule.Clamp(minutes)
	if minutes == m.prefs.RefreshInterval {
		return m, nil
	}
	m.prefs.RefreshInterval = minutes
	gen := m.countdown.SetInterval(minutes)
	return m, tea.Batch(m.tick(gen), m.savePrefs())
}

// handlePrefs applies prefs saved by another dashboard. The watcher also
// reports this dashboard's own saves, those are skipped.
func (m dashboardModel) handlePrefs(p prefs.Prefs) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{m.waitPrefs()}
	if m.writer != nil && m.writer.Own(p) {
		return m, tea.Batch(cmds...)
	}
	if p.RefreshInterval != m.prefs.RefreshInterval {
		m.prefs.RefreshInterval = p.RefreshInterval
		gen := m.countdown.SetInterval(p.RefreshInterval)
		cmds = append(cmds, m.tick(gen))
	}
	if p.SelectedUnit != m.prefs.SelectedUnit {
		m.prefs.SelectedUnit = p.SelectedUnit
		cmds = append(cmds, m.fetchMetrics())
	}
	return m, tea.Batch(cmds...)
}

func (m dashboardModel) handleFetched(msg fetchedMsg) (tea.Model, tea.Cmd) {
	key := msg.ticket.Key
	if !m.guard.Accept(msg.ticket) {
		m.logger.V(1).Info("dropped stale response", "endpoint", key)
		return m, nil
	}
	if msg.err != nil {
		if client.IsCanceled(msg.err) {
			return m, nil
		}
		// the widgets keep whatever they showed last
		m.lastErr, m.errKey = fmt.Sprintf("%s: %v", key, msg.err), key
		return m, nil
	}
	if m.errKey == key {
		m.lastErr, m.errKey = "", ""
	}

	switch key {
	case keyServiceInfo:
		m.info = msg.value.(*client.ServiceInfo)
	case keyMetrics:
		m.snap = msg.value.(*snapshot.Snapshot)
		m.configureCharts()
	case keyGoroutines:
		m.goroutines = msg.value.(*client.GoRoutinesStats)
		m.stackOffset = clamp(m.stackOffset, 0, len(m.goroutines.StackView)-1)
	case keyGoroutineHistory:
		m.goroutineChart.ConfigureLine(charts.GoroutineLine(msg.value.([]snapshot.Point)))
	case keyHistory:
		res := msg.value.(historyResult)
		m.historyChart.ConfigureLine(charts.HistoryLines(res.group, res.points))
	case keyReports:
		m.report = render.ReportTable(msg.value.([]client.ReportRow))
		m.reportReady = true
	case keyFunctions:
		m.functions = msg.value.(client.Functions)
		m.selectedFunction = clamp(m.selectedFunction, 0, len(m.functions)-1)
		return m, m.fetchFunctionDetails()
	case keyFunctionDetails:
		m.details = msg.value.(*client.FunctionDetails)
	}
	return m, nil
}

func (m dashboardModel) configureCharts() {
	m.loadChart.ConfigureBar(charts.LoadBars(m.snap))
	m.cpuChart.ConfigurePie(charts.CPUPie(m.snap))
	m.memoryChart.ConfigurePie(charts.MemoryPie(m.snap))
	m.heapChart.ConfigureBar(charts.HeapBars(m.snap))

	health := render.HealthOf(m.snap)
	if health.HasPercent {
		m.healthGauge.ConfigureGauge(health.Percent, health.Label()+" "+health.Band.Tag, healthColor(health.Band))
	}
}

// refresh is one scheduler fire: the shared data plus whatever the current tab shows
func (m dashboardModel) refresh() tea.Cmd {
	cmds := []tea.Cmd{m.fetchServiceInfo(), m.fetchMetrics()}
	cmds = append(cmds, m.fetchTab()...)
	return tea.Batch(cmds...)
}

func (m dashboardModel) fetchTab() []tea.Cmd {
	switch m.selectedTab {
	case tabGoroutines:
		return []tea.Cmd{m.fetchGoroutines(), m.fetchGoroutineHistory()}
	case tabHistory:
		return []tea.Cmd{m.fetchHistory()}
	case tabReports:
		return []tea.Cmd{m.fetchReports()}
	case tabFunctions:
		return []tea.Cmd{m.fetchFunctions()}
	}
	return nil
}

// fetch starts a guarded request for key. Starting it cancels the previous
// request for the same key.
func (m dashboardModel) fetch(key string, fn func(ctx context.Context) (any, error)) tea.Cmd {
	ticket, ctx := m.guard.Begin(m.ctx, key)
	return func() tea.Msg {
		v, err := fn(ctx)
		return fetchedMsg{ticket: ticket, value: v, err: err}
	}
}

func (m dashboardModel) fetchServiceInfo() tea.Cmd {
	cache := m.cache
	return m.fetch(keyServiceInfo, func(ctx context.Context) (any, error) {
		return cache.ServiceInfo(ctx)
	})
}

func (m dashboardModel) fetchMetrics() tea.Cmd {
	cache, unit := m.cache, m.prefs.SelectedUnit
	return m.fetch(keyMetrics, func(ctx context.Context) (any, error) {
		return cache.Metrics(ctx, unit)
	})
}

func (m dashboardModel) fetchGoroutines() tea.Cmd {
	cache := m.cache
	return m.fetch(keyGoroutines, func(ctx context.Context) (any, error) {
		return cache.GoRoutines(ctx)
	})
}

func (m dashboardModel) fetchGoroutineHistory() tea.Cmd {
	cache, now := m.cache, m.now()
	return m.fetch(keyGoroutineHistory, func(ctx context.Context) (any, error) {
		req, err := client.NewHistoryRequest(charts.GoroutineGroup.Fields, GOROUTINE_HISTORY_RANGE, now)
		if err != nil {
			return nil, err
		}
		return cache.ServiceMetrics(ctx, req)
	})
}

func (m dashboardModel) fetchHistory() tea.Cmd {
	cache, now := m.cache, m.now()
	group := charts.HistoryGroups[m.historyGroup]
	rng := client.HistoryRanges[m.historyRange]
	return m.fetch(keyHistory, func(ctx context.Context) (any, error) {
		req, err := client.NewHistoryRequest(group.Fields, rng, now)
		if err != nil {
			return nil, err
		}
		points, err := cache.ServiceMetrics(ctx, req)
		if err != nil {
			return nil, err
		}
		return historyResult{group: group, points: points}, nil
	})
}

func (m dashboardModel) fetchReports() tea.Cmd {
	cache, now := m.cache, m.now()
	topic := render.ReportTopics[m.reportTopic]
	frame := client.ReportFrames[m.reportFrame]
	return m.fetch(keyReports, func(ctx context.Context) (any, error) {
		req, err := client.NewReportRequest(topic, frame, now)
		if err != nil {
			return nil, err
		}
		return cache.Reports(ctx, req)
	})
}

func (m dashboardModel) fetchFunctions() tea.Cmd {
	cache := m.cache
	return m.fetch(keyFunctions, func(ctx context.Context) (any, error) {
		return cache.Functions(ctx)
	})
}

func (m dashboardModel) fetchFunctionDetails() tea.Cmd {
	names := m.functions.Names()
	if len(names) == 0 {
		return nil
	}
	cache := m.cache
	name := names[clamp(m.selectedFunction, 0, len(names)-1)]
	reportType := FunctionReportTypes[m.reportType]
	return m.fetch(keyFunctionDetails, func(ctx context.Context) (any, error) {
		return cache.FunctionDetails(ctx, name, reportType)
	})
}

func (m dashboardModel) savePrefs() tea.Cmd {
	if m.writer == nil {
		return nil
	}
	// queued now, so saves land in keypress order
	save := m.writer.Queue(m.prefs)
	return func() tea.Msg {
		return prefsSavedMsg{err: save()}
	}
}

func (m dashboardModel) waitPrefs() tea.Cmd {
	if m.prefsCh == nil {
		return nil
	}
	ch := m.prefsCh
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return nil
		}
		return prefsMsg(p)
	}
}

func wrap(i, n int) int {
	if n == 0 {
		return 0
	}
	return ((i % n) + n) % n
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}

// Dashboard runs the interactive dashboard until the user quits or ctx ends
func Dashboard(ctx context.Context, cfg Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := NewDashboard(ctx, cfg)
	if cfg.Store != nil {
		ch, err := cfg.Store.Watch(ctx)
		if err != nil {
			m.logger.Error(err, "prefs changes from other dashboards will not be picked up")
		} else {
			m.prefsCh = ch
		}
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
