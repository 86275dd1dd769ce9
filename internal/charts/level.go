package charts

// Level grades a load percentage
type Level int

const (
	Healthy Level = iota
	Moderate
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Moderate:
		return "moderate"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return "healthy"
	}
}

// LoadLevel applies the bar colour thresholds: above 90 critical, above 80 high,
// above 50 moderate
func LoadLevel(percent float64) Level {
	switch {
	case percent > 90:
		return Critical
	case percent > 80:
		return High
	case percent > 50:
		return Moderate
	default:
		return Healthy
	}
}

// LoadLabel annotates a load value. Values between 30 and 50 get no label.
func LoadLabel(percent float64) string {
	switch {
	case percent > 90:
		return "[Critical Load]"
	case percent > 80:
		return "[High Load]"
	case percent > 50:
		return "[Moderate Load]"
	case percent <= 30:
		return "[Healthy]"
	default:
		return ""
	}
}
