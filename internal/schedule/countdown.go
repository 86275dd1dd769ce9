package schedule

import (
	"fmt"
	"time"
)

const (
	// MinInterval and MaxInterval bound the refresh interval in minutes
	MinInterval = 1
	MaxInterval = 60

	// DefaultInterval is used when nothing was persisted
	DefaultInterval = 5
)

// State of a countdown
type State int

const (
	Idle State = iota
	CountingDown
	Firing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CountingDown:
		return "counting down"
	case Firing:
		return "firing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Clamp limits an interval in minutes to MinInterval..MaxInterval
func Clamp(minutes int) int {
	if minutes < MinInterval {
		return MinInterval
	}
	if minutes > MaxInterval {
		return MaxInterval
	}
	return minutes
}

// Countdown is the refresh timer state machine: Idle -> CountingDown -> Firing -> CountingDown.
//
// Every restart bumps the generation. Tick sources carry the generation they
// were started with, so a superseded tick chain can never fire. Countdown is
// not safe for concurrent use; it is owned by one update loop.
type Countdown struct {
	interval  int
	remaining int
	state     State
	gen       uint64

	// OnTransition, if set, is called on every state change
	OnTransition func(from, to State)
}

// NewCountdown creates an idle countdown with the given interval in minutes
func NewCountdown(minutes int) *Countdown {
	c := &Countdown{interval: Clamp(minutes)}
	c.remaining = c.interval * 60
	return c
}

// State returns the current state
func (c *Countdown) State() State {
	return c.state
}

// Interval returns the interval in minutes
func (c *Countdown) Interval() int {
	return c.interval
}

// Remaining returns the time left until the next fire
func (c *Countdown) Remaining() time.Duration {
	return time.Duration(c.remaining) * time.Second
}

// Generation identifies the current tick chain
func (c *Countdown) Generation() uint64 {
	return c.gen
}

// Start leaves Idle and begins counting down. The caller fires immediately
// and then delivers ticks tagged with the returned generation.
func (c *Countdown) Start() uint64 {
	return c.restart()
}

// Tick advances the countdown by one second if gen is current.
// It returns true exactly when the countdown reached zero and a fire is due.
func (c *Countdown) Tick(gen uint64) bool {
	if gen != c.gen || c.state != CountingDown {
		return false
	}
	if c.remaining > 0 {
		c.remaining--
	}
	if c.remaining > 0 {
		return false
	}

	c.transition(Firing)
	c.remaining = c.interval * 60
	c.transition(CountingDown)
	return true
}

// SetInterval clamps minutes, abandons the current tick chain and restarts the
// countdown with the new duration. Work already firing is left alone.
// It returns the new generation.
func (c *Countdown) SetInterval(minutes int) uint64 {
	c.interval = Clamp(minutes)
	return c.restart()
}

// Reset restarts the countdown with the current interval
func (c *Countdown) Reset() uint64 {
	return c.restart()
}

// Display renders the countdown the way the status bar shows it
func (c *Countdown) Display() string {
	return fmt.Sprintf("Refreshing in %dm %ds", c.remaining/60, c.remaining%60)
}

func (c *Countdown) restart() uint64 {
	c.gen++
	c.remaining = c.interval * 60
	c.transition(CountingDown)
	return c.gen
}

func (c *Countdown) transition(to State) {
	from := c.state
	c.state = to
	if c.OnTransition != nil && from != to {
		c.OnTransition(from, to)
	}
}
