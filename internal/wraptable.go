package monitop

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// WrapTable is a lipgloss table that, when its rows exceed maxHeight, splits
// into several tables side by side
type WrapTable struct {
	headers     []string
	rows        [][]string
	maxHeight   int
	highlight   int
	border      lipgloss.Border
	borderStyle lipgloss.Style
}

var (
	headerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true).Padding(0, 1)
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true).Padding(0, 1)
)

// NewWrapTable creates a new wrap table
func NewWrapTable() *WrapTable {
	return &WrapTable{
		highlight:   -1,
		border:      lipgloss.NormalBorder(),
		borderStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// Headers sets the table headers
func (wt *WrapTable) Headers(headers ...string) *WrapTable {
	wt.headers = headers
	return wt
}

// Rows sets the table rows
func (wt *WrapTable) Rows(rows ...[]string) *WrapTable {
	wt.rows = rows
	return wt
}

// MaxHeight sets the height the table may take before it wraps
func (wt *WrapTable) MaxHeight(height int) *WrapTable {
	wt.maxHeight = height
	return wt
}

// Highlight marks one row, -1 for none
func (wt *WrapTable) Highlight(row int) *WrapTable {
	wt.highlight = row
	return wt
}

// BorderStyle sets the border styling
func (wt *WrapTable) BorderStyle(style lipgloss.Style) *WrapTable {
	wt.borderStyle = style
	return wt
}

// RowsPerTable is how many rows fit under maxHeight: a header line plus the
// top, separator and bottom border lines take four
func (wt *WrapTable) RowsPerTable() int {
	if wt.maxHeight <= 0 {
		return len(wt.rows)
	}
	return max(wt.maxHeight-4, 1)
}

// Render renders the table with wrapping if needed
func (wt *WrapTable) Render() string {
	if len(wt.rows) == 0 {
		return ""
	}

	per := wt.RowsPerTable()
	var tables []string
	for i := 0; i < len(wt.rows); i += per {
		end := min(i+per, len(wt.rows))
		tables = append(tables, wt.chunk(i, wt.rows[i:end]))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tables...)
}

func (wt *WrapTable) chunk(offset int, rows [][]string) string {
	return table.New().
		Border(wt.border).
		BorderStyle(wt.borderStyle).
		Headers(wt.headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case offset+dataRow(row) == wt.highlight:
				return highlightStyle
			default:
				return cellStyle
			}
		}).
		String()
}

// dataRow maps a StyleFunc row to an index into the rows slice
func dataRow(row int) int {
	if table.HeaderRow == 0 {
		return row - 1
	}
	return row
}

// String is a convenience method that calls Render
func (wt *WrapTable) String() string {
	return wt.Render()
}
