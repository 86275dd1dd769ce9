package monitop

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	ui "github.com/gizak/termui/v3"

	"github.com/jondoveston/monitop/internal/charts"
	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/render"
)

// rows taken by the tab header, status bar and help bar
const chromeHeight = 5

var (
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	valueStyle    = lipgloss.NewStyle().Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	rootStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// healthColors follow render.HealthBands
var healthColors = []ui.Color{ui.ColorGreen, ui.Color(154), ui.ColorYellow, charts.ColorOrange, ui.ColorRed}

func healthColor(band render.HealthBand) ui.Color {
	for i, b := range render.HealthBands {
		if b.Tag == band.Tag && i < len(healthColors) {
			return healthColors[i]
		}
	}
	return ui.ColorWhite
}

func (m dashboardModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	bodyHeight := max(m.height-chromeHeight, 3)

	var body string
	switch m.selectedTab {
	case tabDashboard:
		body = m.viewDashboard(bodyHeight)
	case tabGoroutines:
		body = m.viewGoroutines(bodyHeight)
	case tabHistory:
		body = m.viewHistory(bodyHeight)
	case tabReports:
		body = m.viewReports(bodyHeight)
	case tabFunctions:
		body = m.viewFunctions(bodyHeight)
	}

	header := renderTabBar(tabNames, int(m.selectedTab), 2)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.statusBar(), m.helpBar())
}

func (m dashboardModel) env() render.Env {
	return render.Env{Location: m.location, Unit: m.prefs.SelectedUnit}
}

func (m dashboardModel) viewDashboard(height int) string {
	env := m.env()

	columns := 6
	if m.width < 96 {
		columns = 3
	}
	cells := render.Render(m.metrics(), render.DashboardFields, env)
	widths := Columns(m.width, columns)
	stats := make([]Pane, len(cells))
	for i, cell := range cells {
		stats[i] = Outer(cell.Label, widths[i%columns], 4).SetContent(valueStyle.Render(cell.Value))
	}
	statsHeight := 4 * ((len(cells) + columns - 1) / columns)

	half := Columns(m.width, 2)
	var info []string
	for _, cell := range render.Render(render.ServiceInfoValues(m.info), render.ServiceInfoFields, env) {
		info = append(info, labelStyle.Render(cell.Label+": ")+cell.Value)
	}
	infoPane := Outer("Service", half[0], 6).SetContent(strings.Join(info, "\n"))

	health := render.HealthOf(m.metrics())
	healthText := health.Status()
	if health.HasPercent {
		healthText = health.Band.Tag + "  " + healthText
	}
	healthPane := Outer("Overall Health", half[1], 6).
		SetContent(m.healthGauge.Render(half[1]-2, 3) + "\n" + healthText)

	rest := max(height-statsHeight-6, 6)
	m.chartTabs.SetSize(half[0]-2, rest-3)
	chartPane := Outer(m.chartTabs.Selected().Handle.Title(), half[0], rest).SetContent(m.chartTabs.Render())

	runtime := NewWrapTable().
		Headers("METRIC", "VALUE").
		MaxHeight(rest - 3)
	var rows [][]string
	for _, cell := range render.Render(m.metrics(), render.RuntimeFields, env) {
		rows = append(rows, []string{cell.Label, cell.Value})
	}
	runtime.Rows(rows...)
	runtimePane := Outer("Runtime", half[1], rest).SetContent(runtime.Render())

	return lipgloss.JoinVertical(lipgloss.Left,
		Wrap(columns, stats...),
		Horizontal(infoPane, healthPane),
		Horizontal(chartPane, runtimePane),
	)
}

func (m dashboardModel) viewGoroutines(height int) string {
	top := height / 2
	bottom := height - top

	title := "Goroutines"
	stack := charts.Placeholder
	stackTitle := "Stack"
	if m.goroutines != nil {
		title = fmt.Sprintf("Goroutines (%d)", m.goroutines.NumberOfGoroutines)
		stack = "No stacks"
		if n := len(m.goroutines.StackView); n > 0 {
			stackTitle = fmt.Sprintf("Stack %d of %d  (j/k)", m.stackOffset+1, n)
			stack = m.goroutines.StackView[m.stackOffset]
		}
	}

	chartPane := Outer(title, m.width, top).
		SetContent(m.goroutineChart.Render(m.width-2, top-3))
	stackPane := Outer(stackTitle, m.width, bottom).SetContent(stack)
	return Vertical(chartPane, stackPane)
}

func (m dashboardModel) viewHistory(height int) string {
	group := charts.HistoryGroups[m.historyGroup]
	title := fmt.Sprintf("%s  [%s]  last %s", group.Title, group.Name, client.HistoryRanges[m.historyRange])
	return Outer(title, m.width, height).
		SetFocused(true).
		SetContent(m.historyChart.Render(m.width-2, height-3)).
		Render()
}

func (m dashboardModel) viewReports(height int) string {
	title := fmt.Sprintf("%s  last %s", render.ReportTopics[m.reportTopic], client.ReportFrames[m.reportFrame])

	content := charts.Placeholder
	if m.reportReady {
		content = "No data"
		if len(m.report.Rows) > 0 {
			content = NewWrapTable().
				Headers(m.report.Headers...).
				Rows(m.report.Rows...).
				MaxHeight(height - 3).
				Render()
		}
	}
	return Outer(title, m.width, height).SetFocused(true).SetContent(content).Render()
}

func (m dashboardModel) viewFunctions(height int) string {
	listWidth := min(max(m.width/3, 24), m.width/2)
	detailWidth := m.width - listWidth

	names := m.functions.Names()
	list := charts.Placeholder
	if m.functions != nil {
		list = m.renderFunctionTree(names)
	}
	listPane := Outer("Traced Functions", listWidth, height).SetContent(list)

	detailTitle := "Details"
	detail := "No function selected"
	if len(names) > 0 {
		detailTitle = fmt.Sprintf("%s  [%s]", names[m.selectedFunction], FunctionReportTypes[m.reportType])
		detail = charts.Placeholder
		if m.details != nil {
			detail = formatDetails(m.details)
		}
	}
	detailPane := Outer(detailTitle, detailWidth, height).SetFocused(true).SetContent(detail)

	return Horizontal(listPane, detailPane)
}

func (m dashboardModel) renderFunctionTree(names []string) string {
	root := "service"
	if m.info != nil && m.info.ServiceName != "" {
		root = m.info.ServiceName
	}
	t := tree.New().Root(rootStyle.Render(root))
	if len(names) == 0 {
		return t.Child(labelStyle.Render("no traced functions")).String()
	}
	for i, name := range names {
		label := name + labelStyle.Render("  "+m.functions[name].LastRanAt)
		if i == m.selectedFunction {
			label = selectedStyle.Render("▶ "+name) + labelStyle.Render("  "+m.functions[name].LastRanAt)
		}
		t = t.Child(label)
	}
	return t.String()
}

func formatDetails(d *client.FunctionDetails) string {
	var parts []string
	if d.CodeTrace != "" {
		parts = append(parts, rootStyle.Render("Code trace"), d.CodeTrace)
	}
	if d.CoreProfile.CPUProfile != "" {
		parts = append(parts, rootStyle.Render("CPU profile"), d.CoreProfile.CPUProfile)
	}
	if d.CoreProfile.MemProfile != "" {
		parts = append(parts, rootStyle.Render("Memory profile"), d.CoreProfile.MemProfile)
	}
	if len(parts) == 0 {
		return "No data"
	}
	return strings.Join(parts, "\n")
}

func (m dashboardModel) statusBar() string {
	parts := []string{
		m.countdown.Display(),
		fmt.Sprintf("every %dm", m.prefs.RefreshInterval),
		"unit " + m.prefs.SelectedUnit,
	}
	if m.snap != nil {
		parts = append(parts, "updated "+m.snap.FetchedAt.In(m.location).Format(STATUS_TIME_FORMAT))
	}
	status := strings.Join(parts, "  │  ")
	if m.lastErr != "" {
		status += "  │  " + errorStyle.Render(m.lastErr)
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(status)
}

func (m dashboardModel) helpBar() string {
	var keys string
	switch m.selectedTab {
	case tabDashboard:
		keys = "[]=Charts"
	case tabGoroutines:
		keys = "j/k=Stack"
	case tabHistory:
		keys = "[]=Group  ,.=Range"
	case tabReports:
		keys = "[]=Topic  ,.=Timeframe"
	case tabFunctions:
		keys = "j/k=Function  []=Report Type"
	}
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Background(lipgloss.Color("235")).
		Width(m.width).
		Align(lipgloss.Center).
		Render("tab=Switch  " + keys + "  r=Refresh  u=Unit  +/-=Interval  ?=Help  q=Quit")
}

// renderHelp shows what every dashboard field means over the whole screen
func (m dashboardModel) renderHelp() string {
	width := max(m.width*3/4, 20)
	height := max(m.height*3/4, 6)

	var lines []string
	for _, fields := range [][]render.Field{render.DashboardFields, render.RuntimeFields} {
		for _, f := range fields {
			lines = append(lines, valueStyle.Render(f.Label)+labelStyle.Render("  "+f.Info))
		}
	}
	for _, b := range render.HealthBands {
		lines = append(lines, valueStyle.Render(fmt.Sprintf("Health >= %.0f%%", b.Min))+labelStyle.Render("  "+b.Tag))
	}

	modal := NewPane("Help - ESC to close", width, height).
		SetContent(strings.Join(lines, "\n")).
		SetFocused(true)

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		modal.Render(),
		lipgloss.WithWhitespaceChars("░"),
		lipgloss.WithWhitespaceForeground(lipgloss.Color("235")),
	)
}

// metrics keeps a missing snapshot a nil Lookuper
func (m dashboardModel) metrics() render.Lookuper {
	if m.snap == nil {
		return nil
	}
	return m.snap
}
