package monitop

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Pane is a bordered panel. Width and height are the inner size; the border
// adds one cell on every side. Content that does not fit is clipped.
//
//	pane := NewPane("Service", 40, 4).
//	    SetContent("Service Name: orders").
//	    SetFocused(true)
//	fmt.Println(pane.Render())
type Pane struct {
	title       string
	content     string
	width       int
	height      int
	borderStyle lipgloss.Style
	titleStyle  lipgloss.Style
	focused     bool
}

// NewPane creates a new pane with default styling
func NewPane(title string, width, height int) Pane {
	return Pane{
		title:  title,
		width:  max(width, 1),
		height: max(height, 1),
		borderStyle: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")),
		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true),
	}
}

// Outer builds a pane that takes exactly width x height cells including its border
func Outer(title string, width, height int) Pane {
	return NewPane(title, width-2, height-2)
}

// SetContent sets the pane content
func (p Pane) SetContent(content string) Pane {
	p.content = content
	return p
}

// SetBorderColor recolours the border
func (p Pane) SetBorderColor(color lipgloss.TerminalColor) Pane {
	p.borderStyle = p.borderStyle.BorderForeground(color)
	return p
}

// SetFocused highlights the border
func (p Pane) SetFocused(focused bool) Pane {
	p.focused = focused
	if focused {
		p.borderStyle = p.borderStyle.BorderForeground(lipgloss.Color("170"))
	} else {
		p.borderStyle = p.borderStyle.BorderForeground(lipgloss.Color("240"))
	}
	return p
}

// Render draws the pane
func (p Pane) Render() string {
	var b strings.Builder
	rows := p.height
	if p.title != "" {
		b.WriteString(p.titleStyle.MaxWidth(p.width).Render(p.title))
		rows--
		if rows > 0 {
			b.WriteString("\n")
		}
	}
	if rows > 0 {
		b.WriteString(lipgloss.NewStyle().MaxWidth(p.width).MaxHeight(rows).Render(p.content))
	}

	return p.borderStyle.
		Width(p.width).
		Height(p.height).
		Render(b.String())
}

// String is a convenience method that calls Render
func (p Pane) String() string {
	return p.Render()
}
