package monitop

import (
	"github.com/charmbracelet/lipgloss"
)

// Horizontal renders panes side by side
func Horizontal(panes ...Pane) string {
	if len(panes) == 0 {
		return ""
	}

	views := make([]string, len(panes))
	for i, pane := range panes {
		views[i] = pane.Render()
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, views...)
}

// Vertical renders panes stacked vertically
func Vertical(panes ...Pane) string {
	if len(panes) == 0 {
		return ""
	}

	views := make([]string, len(panes))
	for i, pane := range panes {
		views[i] = pane.Render()
	}

	return lipgloss.JoinVertical(lipgloss.Left, views...)
}

// GridLayout renders panes in rows
type GridLayout struct {
	rows [][]Pane
}

// NewGrid creates a new grid layout
func NewGrid() *GridLayout {
	return &GridLayout{
		rows: make([][]Pane, 0),
	}
}

// AddRow adds a row of panes to the grid
func (g *GridLayout) AddRow(panes ...Pane) *GridLayout {
	g.rows = append(g.rows, panes)
	return g
}

// Render renders the grid layout
func (g *GridLayout) Render() string {
	if len(g.rows) == 0 {
		return ""
	}

	rowViews := make([]string, len(g.rows))
	for i, row := range g.rows {
		rowViews[i] = Horizontal(row...)
	}

	return lipgloss.JoinVertical(lipgloss.Left, rowViews...)
}

// Wrap lays panes out left to right, starting a new row every columns panes
func Wrap(columns int, panes ...Pane) string {
	if columns < 1 {
		columns = 1
	}
	g := NewGrid()
	for i := 0; i < len(panes); i += columns {
		end := min(i+columns, len(panes))
		g.AddRow(panes[i:end]...)
	}
	return g.Render()
}

// Columns splits width into n widths that add up to it
func Columns(width, n int) []int {
	if n < 1 {
		return nil
	}
	widths := make([]int, n)
	for i := range widths {
		widths[i] = width / n
	}
	for i := 0; i < width%n; i++ {
		widths[i]++
	}
	return widths
}
