package devserver

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/jondoveston/monitop/internal/client"
)

// Report types accepted by the function-details endpoint
const (
	ReportText   = "text"
	ReportTraces = "traces"
	ReportTree   = "tree"
)

type traced struct {
	lastRan time.Time
	calls   int
	total   time.Duration
	max     time.Duration
	alloc   uint64
	frames  []runtime.Frame
}

// Tracer measures named functions the way a monitored service would
type Tracer struct {
	mu  sync.Mutex
	fns map[string]*traced
}

// NewTracer creates an empty tracer
func NewTracer() *Tracer {
	return &Tracer{fns: map[string]*traced{}}
}

// Trace runs fn and records its duration, allocations and call site under name
func (t *Tracer) Trace(name string, fn func()) {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	runtime.ReadMemStats(&after)

	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	var frames []runtime.Frame
	it := runtime.CallersFrames(pcs[:n])
	for {
		f, more := it.Next()
		frames = append(frames, f)
		if !more {
			break
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.fns[name]
	if !ok {
		tr = &traced{}
		t.fns[name] = tr
	}
	tr.lastRan = start
	tr.calls++
	tr.total += elapsed
	if elapsed > tr.max {
		tr.max = elapsed
	}
	tr.alloc = after.TotalAlloc - before.TotalAlloc
	tr.frames = frames
}

// Functions lists every traced function
func (t *Tracer) Functions() client.Functions {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(client.Functions, len(t.fns))
	for name, tr := range t.fns {
		out[name] = client.FunctionSummary{LastRanAt: tr.lastRan.Format(time.RFC3339)}
	}
	return out
}

// Details describes one traced function
func (t *Tracer) Details(name, reportType string) (*client.FunctionDetails, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tr, ok := t.fns[name]
	if !ok {
		return nil, fmt.Errorf("function %q is not traced", name)
	}

	d := &client.FunctionDetails{}
	switch reportType {
	case ReportText, "":
		d.CodeTrace = tr.text(name)
	case ReportTraces:
		d.CodeTrace = tr.traces()
	case ReportTree:
		d.CodeTrace = tr.tree(name)
	default:
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}

	avg := time.Duration(0)
	if tr.calls > 0 {
		avg = tr.total / time.Duration(tr.calls)
	}
	d.CoreProfile.CPUProfile = fmt.Sprintf("calls: %d, total: %s, avg: %s, max: %s", tr.calls, tr.total, avg, tr.max)
	d.CoreProfile.MemProfile = fmt.Sprintf("allocated in last call: %d bytes", tr.alloc)
	return d, nil
}

func (tr *traced) text(name string) string {
	return fmt.Sprintf("%s\n  last ran: %s\n  calls: %d\n  total time: %s",
		name, tr.lastRan.Format(time.RFC3339), tr.calls, tr.total)
}

func (tr *traced) traces() string {
	var b strings.Builder
	for _, f := range tr.frames {
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.Function, f.File, f.Line)
	}
	return b.String()
}

func (tr *traced) tree(name string) string {
	var b strings.Builder
	// outermost caller first
	depth := 0
	for i := len(tr.frames) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), tr.frames[i].Function)
		depth++
	}
	fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), name)
	return b.String()
}
