package charts

import "time"

// BarSpec is the data of one bar chart
type BarSpec struct {
	Title  string
	Labels []string
	Values []float64
	Levels []Level
	Max    float64
	Unit   string
}

// Empty reports whether there is nothing to draw
func (b BarSpec) Empty() bool {
	return len(b.Values) == 0
}

// Slice is one segment of a pie chart
type Slice struct {
	Label string
	Value float64
}

// PieSpec is the data of one pie chart
type PieSpec struct {
	Title  string
	Slices []Slice
}

// Total sums the slices
func (p PieSpec) Total() float64 {
	total := 0.0
	for _, s := range p.Slices {
		if s.Value > 0 {
			total += s.Value
		}
	}
	return total
}

// Empty reports whether there is nothing to draw
func (p PieSpec) Empty() bool {
	return p.Total() <= 0
}

// Series is one line of a line chart
type Series struct {
	Name   string
	Values []float64
}

// LineSpec is the data of one line chart. Every series has one value per time.
type LineSpec struct {
	Title  string
	Times  []time.Time
	Series []Series
	Format func(float64) string
}

// Empty reports whether no series has enough points for a line
func (l LineSpec) Empty() bool {
	for _, s := range l.Series {
		if len(s.Values) >= 2 {
			return false
		}
	}
	return true
}

// Max returns the largest value across all series
func (l LineSpec) Max() float64 {
	max := 0.0
	for _, s := range l.Series {
		for _, v := range s.Values {
			if v > max {
				max = v
			}
		}
	}
	return max
}
