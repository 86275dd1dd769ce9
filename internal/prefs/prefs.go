package prefs

import (
	"strings"

	"github.com/jondoveston/monitop/internal/schedule"
)

// Units the metrics endpoint accepts
const (
	UnitKB = "KB"
	UnitMB = "MB"
)

// Prefs are the dashboard settings that survive restarts
type Prefs struct {
	RefreshInterval int    `yaml:"refresh_interval"`
	SelectedUnit    string `yaml:"selected_unit"`
}

// Default returns the settings used when nothing was saved
func Default() Prefs {
	return Prefs{RefreshInterval: schedule.DefaultInterval, SelectedUnit: UnitKB}
}

// Normalize clamps the interval and falls back to KB for unknown units.
// A zero interval means unset and becomes the default.
func (p Prefs) Normalize() Prefs {
	if p.RefreshInterval == 0 {
		p.RefreshInterval = schedule.DefaultInterval
	}
	p.RefreshInterval = schedule.Clamp(p.RefreshInterval)
	p.SelectedUnit = NormalizeUnit(p.SelectedUnit)
	return p
}

// NormalizeUnit returns KB or MB
func NormalizeUnit(unit string) string {
	if strings.EqualFold(strings.TrimSpace(unit), UnitMB) {
		return UnitMB
	}
	return UnitKB
}

// NextUnit toggles between KB and MB
func NextUnit(unit string) string {
	if NormalizeUnit(unit) == UnitKB {
		return UnitMB
	}
	return UnitKB
}
