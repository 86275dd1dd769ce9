package monitop

import "github.com/jondoveston/monitop/internal/charts"

// Chart is one tab of a TabSet
type Chart struct {
	Label  string
	Handle *charts.Handle
}
