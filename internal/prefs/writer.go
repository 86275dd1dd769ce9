package prefs

import (
	"sync"
)

// ownHistory bounds how many of its own saves a Writer remembers
const ownHistory = 8

// Writer saves the prefs of one dashboard in the order they were queued.
// A save that runs after a newer one has landed is skipped, so the file
// always ends on the latest value.
type Writer struct {
	store *Store

	mu      sync.Mutex
	queued  uint64
	written uint64
	own     []Prefs
}

// NewWriter wraps store
func NewWriter(store *Store) *Writer {
	return &Writer{store: store}
}

// Queue takes the next sequence number for p and returns the save to run.
// Call it in the order the changes were made.
func (w *Writer) Queue(p Prefs) func() error {
	p = p.Normalize()

	w.mu.Lock()
	w.queued++
	seq := w.queued
	w.mu.Unlock()

	return func() error {
		return w.save(seq, p)
	}
}

func (w *Writer) save(seq uint64, p Prefs) error {
	// held across the write, one save at a time
	w.mu.Lock()
	defer w.mu.Unlock()

	if seq <= w.written {
		w.store.logger.V(1).Info("skipped superseded prefs save", "seq", seq, "written", w.written)
		return nil
	}
	if err := w.store.Save(p); err != nil {
		return err
	}
	w.written = seq
	w.own = append(w.own, p)
	if len(w.own) > ownHistory {
		w.own = w.own[len(w.own)-ownHistory:]
	}
	return nil
}

// Own reports whether p is file content this writer produced since the file
// was last changed by someone else. Anything else clears the history.
func (w *Writer) Own(p Prefs) bool {
	p = p.Normalize()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, o := range w.own {
		if o == p {
			return true
		}
	}
	w.own = nil
	return false
}
