package monitop

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TabSet shows one of several charts at a time with a tab bar above it
type TabSet struct {
	charts      []Chart
	selectedTab int
	width       int
	height      int
}

// NewTabSet creates a new TabSet
func NewTabSet(charts ...Chart) *TabSet {
	return &TabSet{
		charts: charts,
		width:  40,
		height: 10,
	}
}

// SetSize sets the dimensions for rendering
func (ts *TabSet) SetSize(width, height int) *TabSet {
	ts.width = width
	ts.height = height
	return ts
}

// SelectTab changes the active tab
func (ts *TabSet) SelectTab(index int) *TabSet {
	if index >= 0 && index < len(ts.charts) {
		ts.selectedTab = index
	}
	return ts
}

// NextTab moves to the next tab (wraps around)
func (ts *TabSet) NextTab() *TabSet {
	if len(ts.charts) > 0 {
		ts.selectedTab = (ts.selectedTab + 1) % len(ts.charts)
	}
	return ts
}

// PrevTab moves to the previous tab (wraps around)
func (ts *TabSet) PrevTab() *TabSet {
	if len(ts.charts) > 0 {
		ts.selectedTab = (ts.selectedTab - 1 + len(ts.charts)) % len(ts.charts)
	}
	return ts
}

// Selected returns the chart shown
func (ts *TabSet) Selected() Chart {
	return ts.charts[ts.selectedTab]
}

// Render draws the tab bar and the selected chart
func (ts *TabSet) Render() string {
	if len(ts.charts) == 0 {
		return "No charts available"
	}

	var b strings.Builder
	contentHeight := ts.height
	if len(ts.charts) > 1 {
		b.WriteString(ts.renderTabs())
		b.WriteString("\n")
		contentHeight -= 3
	}

	b.WriteString(ts.charts[ts.selectedTab].Handle.Render(ts.width, contentHeight))
	return b.String()
}

func (ts *TabSet) renderTabs() string {
	labels := make([]string, len(ts.charts))
	for i, chart := range ts.charts {
		labels[i] = chart.Label
	}
	return renderTabBar(labels, ts.selectedTab, 1)
}

// renderTabBar draws labels as bordered tabs with the selected one highlighted
func renderTabBar(labels []string, selected, padding int) string {
	activeTabStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("170")).
		Background(lipgloss.Color("235")).
		Bold(true).
		Padding(0, padding).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("170"))

	inactiveTabStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Padding(0, padding).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("236"))

	rendered := make([]string, len(labels))
	for i, label := range labels {
		if i == selected {
			rendered[i] = activeTabStyle.Render(label)
		} else {
			rendered[i] = inactiveTabStyle.Render(label)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

// String is a convenience method that calls Render
func (ts *TabSet) String() string {
	return ts.Render()
}
