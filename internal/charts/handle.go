package charts

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

// Placeholder is shown until a chart has been configured with data
const Placeholder = "Fetching the data..."

// ColorOrange is the xterm-256 orange used for high load
const ColorOrange = ui.Color(208)

// LevelColor maps a load level to its bar colour
func LevelColor(l Level) ui.Color {
	switch l {
	case Critical:
		return ui.ColorRed
	case High:
		return ColorOrange
	case Moderate:
		return ui.ColorYellow
	default:
		return ui.ColorGreen
	}
}

// SeriesColors are cycled through for pie slices and plot lines
var SeriesColors = []ui.Color{ui.ColorCyan, ui.ColorMagenta, ui.ColorYellow, ui.ColorGreen, ui.ColorBlue, ui.ColorRed, ColorOrange}

// Kind of widget a handle owns
type Kind int

const (
	KindBar Kind = iota
	KindPie
	KindLine
	KindGauge
)

// Handle owns one termui widget for one dashboard region. It is configured
// again on every refresh and drawn off-screen into a string.
type Handle struct {
	kind  Kind
	title string

	bar   *widgets.BarChart
	pie   *widgets.PieChart
	plot  *widgets.Plot
	gauge *widgets.Gauge
	empty *widgets.Paragraph

	labels     []string
	series     [][]float64
	configured bool
	hasData    bool
	legend     []legendEntry
	footer     string
}

type legendEntry struct {
	color ui.Color
	text  string
}

// NewHandle creates a handle of kind with a title
func NewHandle(kind Kind, title string) *Handle {
	h := &Handle{kind: kind, title: title, empty: widgets.NewParagraph()}
	h.empty.Title = title
	h.empty.Text = Placeholder

	switch kind {
	case KindBar:
		h.bar = widgets.NewBarChart()
		h.bar.Title = title
		h.bar.BarGap = 1
	case KindPie:
		h.pie = widgets.NewPieChart()
		h.pie.Title = title
		h.pie.Colors = append([]ui.Color{}, SeriesColors...)
		h.pie.AngleOffset = -math.Pi / 2
	case KindLine:
		h.plot = widgets.NewPlot()
		h.plot.Title = title
		h.plot.Marker = widgets.MarkerBraille
		h.plot.AxesColor = ui.ColorWhite
	case KindGauge:
		h.gauge = widgets.NewGauge()
		h.gauge.Title = title
	}
	return h
}

// Kind returns the widget kind
func (h *Handle) Kind() Kind {
	return h.kind
}

// Title returns the title the handle was created with
func (h *Handle) Title() string {
	return h.title
}

// Configured reports whether the handle has been given data at least once
func (h *Handle) Configured() bool {
	return h.configured
}

// ConfigureBar loads a bar spec into a bar handle
func (h *Handle) ConfigureBar(spec BarSpec) {
	if h.bar == nil {
		return
	}
	h.configured = true
	h.hasData = !spec.Empty()
	if spec.Title != "" {
		h.bar.Title = spec.Title
		h.empty.Title = spec.Title
	}

	h.bar.Data = append(h.bar.Data[:0], spec.Values...)
	h.labels = append(h.labels[:0], spec.Labels...)
	colors := make([]ui.Color, 0, len(spec.Values))
	for i := range spec.Values {
		level := Healthy
		if i < len(spec.Levels) {
			level = spec.Levels[i]
		}
		colors = append(colors, LevelColor(level))
	}
	if len(colors) == 0 {
		colors = append(colors, ui.ColorGreen)
	}
	h.bar.BarColors = colors
	h.bar.LabelStyles = []ui.Style{ui.NewStyle(ui.ColorWhite)}
	h.bar.NumStyles = []ui.Style{ui.NewStyle(ui.ColorBlack)}
	h.bar.NumFormatter = func(v float64) string { return formatNumber(v) }

	// an all zero chart would divide by zero
	h.bar.MaxVal = spec.Max
	if h.bar.MaxVal <= 0 {
		h.bar.MaxVal = 1
	}

	h.legend = h.legend[:0]
	for i, label := range spec.Labels {
		text := fmt.Sprintf("%s: %s%s", label, formatNumber(spec.Values[i]), unitSuffix(spec.Unit))
		if spec.Unit == "%" {
			if tag := LoadLabel(spec.Values[i]); tag != "" {
				text += " " + tag
			}
		}
		h.legend = append(h.legend, legendEntry{color: h.bar.BarColors[i%len(h.bar.BarColors)], text: text})
	}
	h.footer = ""
}

// ConfigurePie loads a pie spec into a pie handle
func (h *Handle) ConfigurePie(spec PieSpec) {
	if h.pie == nil {
		return
	}
	h.configured = true
	h.hasData = !spec.Empty()
	if spec.Title != "" {
		h.pie.Title = spec.Title
		h.empty.Title = spec.Title
	}

	total := spec.Total()
	h.pie.Data = h.pie.Data[:0]
	h.legend = h.legend[:0]
	for i, s := range spec.Slices {
		v := s.Value
		if v < 0 {
			v = 0
		}
		h.pie.Data = append(h.pie.Data, v)
		pct := 0.0
		if total > 0 {
			pct = v / total * 100
		}
		h.legend = append(h.legend, legendEntry{
			color: SeriesColors[i%len(SeriesColors)],
			text:  fmt.Sprintf("%s: %s (%.1f%%)", s.Label, formatNumber(s.Value), pct),
		})
	}
	h.pie.LabelFormatter = func(i int, v float64) string {
		if total <= 0 {
			return ""
		}
		return fmt.Sprintf("%.0f%%", v/total*100)
	}
	h.footer = ""
}

// ConfigureLine loads a line spec into a line handle. Series with fewer than
// two points cannot be drawn as a line and are left out.
func (h *Handle) ConfigureLine(spec LineSpec) {
	if h.plot == nil {
		return
	}
	h.configured = true
	h.hasData = !spec.Empty()
	if spec.Title != "" {
		h.plot.Title = spec.Title
		h.empty.Title = spec.Title
	}

	format := spec.Format
	if format == nil {
		format = formatNumber
	}

	h.series = h.series[:0]
	colors := make([]ui.Color, 0, len(spec.Series))
	h.legend = h.legend[:0]
	for i, s := range spec.Series {
		if len(s.Values) < 2 {
			continue
		}
		color := SeriesColors[i%len(SeriesColors)]
		h.series = append(h.series, append([]float64{}, s.Values...))
		colors = append(colors, color)
		h.legend = append(h.legend, legendEntry{color: color, text: fmt.Sprintf("%s: %s", s.Name, format(s.Values[len(s.Values)-1]))})
	}
	if len(colors) == 0 {
		colors = append(colors, SeriesColors[0])
	}
	h.plot.LineColors = colors

	h.plot.MaxVal = spec.Max()
	if h.plot.MaxVal <= 0 {
		h.plot.MaxVal = 1
	}

	h.footer = ""
	if len(spec.Times) > 0 {
		first, last := spec.Times[0], spec.Times[len(spec.Times)-1]
		h.footer = fmt.Sprintf("%s - %s  max %s", first.Local().Format("15:04:05"), last.Local().Format("15:04:05"), format(h.plot.MaxVal))
	}
}

// ConfigureGauge sets a gauge handle's fill and label
func (h *Handle) ConfigureGauge(percent float64, label string, color ui.Color) {
	if h.gauge == nil {
		return
	}
	h.configured = true
	h.hasData = true

	p := int(percent + 0.5)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	h.gauge.Percent = p
	h.gauge.Label = label
	h.gauge.BarColor = color
	h.gauge.LabelStyle = ui.NewStyle(ui.ColorWhite)
	h.legend = h.legend[:0]
	h.footer = ""
}

// SetPlaceholder replaces the text shown while there is nothing to draw
func (h *Handle) SetPlaceholder(text string) {
	h.empty.Text = text
}

// Render draws the widget into a width x height block of text. The legend is
// drawn below the chart and takes rows from it.
func (h *Handle) Render(width, height int) string {
	if width < 4 || height < 3 {
		return ""
	}
	if !h.configured || !h.hasData {
		if h.configured && h.empty.Text == Placeholder {
			h.empty.Text = "No data"
		}
		return draw(h.empty, width, height)
	}

	legend := h.renderLegend(width)
	chartHeight := height - len(legend)
	if chartHeight < minChartHeight(h.kind) {
		legend = nil
		chartHeight = height
	}

	var chart string
	switch h.kind {
	case KindBar:
		n := len(h.bar.Data)
		if n > 0 {
			h.bar.BarWidth = (width - 2 - (n-1)*h.bar.BarGap) / n
			if h.bar.BarWidth < 1 {
				h.bar.BarWidth = 1
			}
		}
		// labels wider than a bar are centred off the bar, so cut them first
		h.bar.Labels = h.bar.Labels[:0]
		for _, label := range h.labels {
			h.bar.Labels = append(h.bar.Labels, fit(label, h.bar.BarWidth))
		}
		chart = draw(h.bar, width, chartHeight)
	case KindPie:
		chart = draw(h.pie, width, chartHeight)
	case KindLine:
		if width < 20 {
			return draw(h.empty, width, height)
		}
		// one point per column, the y axis labels take the rest
		points := width - plotAxisWidth
		h.plot.Data = h.plot.Data[:0]
		for _, s := range h.series {
			h.plot.Data = append(h.plot.Data, Resample(s, points))
		}
		chart = draw(h.plot, width, chartHeight)
	case KindGauge:
		chart = draw(h.gauge, width, chartHeight)
	}

	if len(legend) == 0 {
		return chart
	}
	return chart + "\n" + strings.Join(legend, "\n")
}

// plotAxisWidth is the room the plot's y axis labels and border take
const plotAxisWidth = 10

// Resample reduces values to at most n points by averaging equal buckets
func Resample(values []float64, n int) []float64 {
	if n < 2 {
		n = 2
	}
	if len(values) <= n {
		return values
	}
	out := make([]float64, n)
	for i := range out {
		start := i * len(values) / n
		end := (i + 1) * len(values) / n
		if end <= start {
			end = start + 1
		}
		sum := 0.0
		for _, v := range values[start:end] {
			sum += v
		}
		out[i] = sum / float64(end-start)
	}
	return out
}

func minChartHeight(kind Kind) int {
	switch kind {
	case KindGauge:
		return 3
	case KindLine:
		return 6
	default:
		return 5
	}
}

func (h *Handle) renderLegend(width int) []string {
	var lines []string
	for _, e := range h.legend {
		marker := styleFor(ui.NewStyle(e.color)).Render("■")
		lines = append(lines, truncate(marker+" "+e.text, width))
	}
	if h.footer != "" {
		lines = append(lines, truncate(h.footer, width))
	}
	return lines
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}

func fit(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width])
}

func unitSuffix(unit string) string {
	switch unit {
	case "":
		return ""
	case "%":
		return "%"
	default:
		return " " + unit
	}
}

// draw renders a termui drawable off-screen the way ui.Render does on-screen
func draw(d ui.Drawable, width, height int) string {
	d.Lock()
	defer d.Unlock()

	d.SetRect(0, 0, width, height)
	buf := ui.NewBuffer(d.GetRect())
	d.Draw(buf)
	return BufferString(buf)
}

// BufferString converts a termui buffer into lines of lipgloss styled text
func BufferString(buf *ui.Buffer) string {
	var b strings.Builder
	var run []rune

	for y := buf.Min.Y; y < buf.Max.Y; y++ {
		if y > buf.Min.Y {
			b.WriteByte('\n')
		}
		var runStyle ui.Style
		flush := func() {
			if len(run) == 0 {
				return
			}
			if runStyle == ui.StyleClear {
				b.WriteString(string(run))
			} else {
				b.WriteString(styleFor(runStyle).Render(string(run)))
			}
			run = run[:0]
		}

		for x := buf.Min.X; x < buf.Max.X; x++ {
			cell := buf.GetCell(image.Pt(x, y))
			if len(run) > 0 && cell.Style != runStyle {
				flush()
			}
			runStyle = cell.Style
			r := cell.Rune
			if r == 0 {
				r = ' '
			}
			run = append(run, r)
		}
		flush()
	}
	return b.String()
}

func styleFor(s ui.Style) lipgloss.Style {
	style := lipgloss.NewStyle()
	if s.Fg != ui.ColorClear {
		style = style.Foreground(lipgloss.Color(fmt.Sprint(int(s.Fg))))
	}
	if s.Bg != ui.ColorClear {
		style = style.Background(lipgloss.Color(fmt.Sprint(int(s.Bg))))
	}
	if s.Modifier&ui.ModifierBold != 0 {
		style = style.Bold(true)
	}
	if s.Modifier&ui.ModifierUnderline != 0 {
		style = style.Underline(true)
	}
	if s.Modifier&ui.ModifierReverse != 0 {
		style = style.Reverse(true)
	}
	return style
}
