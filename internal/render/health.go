package render

import (
	"github.com/jondoveston/monitop/internal/snapshot"
)

// HealthBand is one step of the health gauge scale
type HealthBand struct {
	Min   float64
	Tag   string
	Color string
}

// HealthBands from best to worst. The last band catches everything below the others.
var HealthBands = []HealthBand{
	{Min: 80, Tag: "Smooth Sailing", Color: "#2ecc71"},
	{Min: 60, Tag: "System Looking Good", Color: "#a3e635"},
	{Min: 50, Tag: "Fairly Balanced", Color: "#f1c40f"},
	{Min: 40, Tag: "System Under Stress", Color: "#e67e22"},
	{Min: 0, Tag: "Critical Condition", Color: "#e74c3c"},
}

// BandFor returns the band percent falls into
func BandFor(percent float64) HealthBand {
	for _, b := range HealthBands[:len(HealthBands)-1] {
		if percent >= b.Min {
			return b
		}
	}
	return HealthBands[len(HealthBands)-1]
}

// Health is the rendered overall health block
type Health struct {
	Percent    float64
	HasPercent bool
	Band       HealthBand
	Healthy    bool
	HasHealthy bool
	Message    string
}

// Label renders the gauge text, "85.2%"
func (h Health) Label() string {
	if !h.HasPercent {
		return NotAvailable
	}
	return snapshot.FormatValue(h.Percent) + "%"
}

// Status renders the healthy flag and message
func (h Health) Status() string {
	if !h.HasHealthy {
		return NotAvailable
	}
	status := "unhealthy"
	if h.Healthy {
		status = "healthy"
	}
	if h.Message == "" {
		return status
	}
	return status + ": " + h.Message
}

// HealthOf reads the overall health category of src
func HealthOf(src Lookuper) Health {
	var h Health
	if src == nil {
		return h
	}
	if v, ok := src.Lookup(snapshot.HealthCategory + ".overall_health_percent"); ok {
		h.Percent, h.HasPercent = snapshot.ToFloat(v)
	}
	if h.HasPercent {
		h.Band = BandFor(h.Percent)
	}
	if v, ok := src.Lookup(snapshot.HealthCategory + ".health.healthy"); ok {
		h.Healthy, h.HasHealthy = v.(bool)
	}
	if v, ok := src.Lookup(snapshot.HealthCategory + ".health.message"); ok {
		h.Message = snapshot.FormatValue(v)
	}
	return h
}
