package poll

import (
	"context"
	"sync"
)

// Ticket identifies one in-flight request for a key
type Ticket struct {
	Key string
	Seq uint64
}

type slot struct {
	seq    uint64
	cancel context.CancelFunc
	active bool
}

// Guard allows one accepted in-flight request per key.
// Beginning a request cancels the previous one for the same key, and
// results carrying an older ticket are reported stale.
type Guard struct {
	mu    sync.Mutex
	slots map[string]*slot
	stale func(key string)
}

// NewGuard creates a guard. onStale, if not nil, is called for every dropped result.
func NewGuard(onStale func(key string)) *Guard {
	return &Guard{
		slots: make(map[string]*slot),
		stale: onStale,
	}
}

// Begin starts a request for key, cancelling any request already in flight for it
func (g *Guard) Begin(parent context.Context, key string) (Ticket, context.Context) {
	ctx, cancel := context.WithCancel(parent)

	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[key]
	if !ok {
		s = &slot{}
		g.slots[key] = s
	}
	if s.active && s.cancel != nil {
		s.cancel()
	}
	s.seq++
	s.cancel = cancel
	s.active = true

	return Ticket{Key: key, Seq: s.seq}, ctx
}

// Current reports whether t is still the latest ticket for its key
func (g *Guard) Current(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[t.Key]
	return ok && s.seq == t.Seq
}

// Accept finishes t and reports whether its result should be applied.
// A stale ticket is counted and rejected.
func (g *Guard) Accept(t Ticket) bool {
	if g.Finish(t) {
		return true
	}
	if g.stale != nil {
		g.stale(t.Key)
	}
	return false
}

// Finish releases t. It returns false when a newer ticket replaced it.
func (g *Guard) Finish(t Ticket) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[t.Key]
	if !ok || s.seq != t.Seq {
		return false
	}
	if s.active {
		s.cancel()
		s.active = false
	}
	return true
}

// InFlight reports whether key has an unfinished request
func (g *Guard) InFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.slots[key]
	return ok && s.active
}

// CancelAll cancels every in-flight request and invalidates their tickets
func (g *Guard) CancelAll() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, s := range g.slots {
		if s.active {
			s.cancel()
			s.active = false
		}
		s.seq++
	}
}
