package charts

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/jondoveston/monitop/internal/snapshot"
)

type loadBar struct {
	label string
	path  string
}

var loadBars = []loadBar{
	{"Service CPU Load", "load_statistics.service_cpu_load"},
	{"System CPU Load", "load_statistics.system_cpu_load"},
	{"Total CPU Load", "load_statistics.total_cpu_load"},
	{"Service Memory Load", "load_statistics.service_memory_load"},
	{"System Memory Load", "load_statistics.system_memory_load"},
}

// LoadBars maps the load statistics onto five percentage bars. Missing or
// unparsable values are drawn as zero.
func LoadBars(snap *snapshot.Snapshot) BarSpec {
	spec := BarSpec{Title: "Load Statistics", Max: 100, Unit: "%"}
	for _, b := range loadBars {
		v, _ := snap.Float(b.path)
		spec.Labels = append(spec.Labels, b.label)
		spec.Values = append(spec.Values, v)
		spec.Levels = append(spec.Levels, LoadLevel(v))
	}
	return spec
}

// CPUPie splits cores between the service, the system and the machine total
func CPUPie(snap *snapshot.Snapshot) PieSpec {
	return pie(snap, "CPU Statistics", []loadBar{
		{"Cores Used by Service", "cpu_statistics.cores_used_by_service"},
		{"Cores Used by System", "cpu_statistics.cores_used_by_system"},
		{"Total Cores", "cpu_statistics.total_cores"},
	})
}

// MemoryPie splits memory between the service, the system and what is available
func MemoryPie(snap *snapshot.Snapshot) PieSpec {
	return pie(snap, "Memory Distribution", []loadBar{
		{"Memory Used by Service", "memory_statistics.memory_used_by_service"},
		{"Memory Used by System", "memory_statistics.memory_used_by_system"},
		{"Available Memory", "memory_statistics.available_memory"},
	})
}

func pie(snap *snapshot.Snapshot, title string, parts []loadBar) PieSpec {
	spec := PieSpec{Title: title}
	for _, p := range parts {
		v, _ := snap.Float(p.path)
		spec.Slices = append(spec.Slices, Slice{Label: p.label, Value: v})
	}
	return spec
}

// HeapRecords are the memory records shown in the heap chart, in display order
var HeapRecords = []string{"HeapAlloc", "HeapSys", "HeapIdle", "HeapInuse", "HeapReleased"}

// HeapBars reads the heap records out of the memory statistics
func HeapBars(snap *snapshot.Snapshot) BarSpec {
	byName := map[string]snapshot.Record{}
	for _, r := range snap.Records("memory_statistics.mem_stats_records") {
		if _, seen := byName[r.Name]; !seen {
			byName[r.Name] = r
		}
	}

	spec := BarSpec{Title: "Heap Memory Usage"}
	if snap != nil {
		spec.Unit = snap.Unit
	}
	for _, name := range HeapRecords {
		r := byName[name]
		spec.Labels = append(spec.Labels, name)
		spec.Values = append(spec.Values, r.Value)
		spec.Levels = append(spec.Levels, Healthy)
		if r.Unit != "" {
			spec.Unit = r.Unit
		}
		if r.Value > spec.Max {
			spec.Max = r.Value
		}
	}
	return spec
}

// Group is a named set of history fields charted together
type Group struct {
	Name   string
	Title  string
	Fields []string
}

// HistoryGroups are the selectable metric groups of the history view
var HistoryGroups = []Group{
	{"heap", "Heap Memory Usage Over Time", []string{"heap_alloc", "heap_sys", "heap_inuse", "heap_idle", "heap_released"}},
	{"stack", "Stack Memory Usage Over Time", []string{"stack_inuse", "stack_sys"}},
	{"gc", "Garbage Collection Over Time", []string{"pause_total_ns", "num_gc", "gc_cpu_fraction"}},
	{"misc", "Miscellaneous System Memory Over Time", []string{"m_span_inuse", "m_span_sys", "m_cache_inuse", "m_cache_sys", "buck_hash_sys", "gc_sys", "other_sys"}},
	{"cpu-usage", "CPU Usage Metrics", []string{"total_cores", "cores_used_by_service", "cores_used_by_system"}},
	{"load-memory", "Load Memory Metrics", []string{"overall_load_of_service", "service_cpu_load", "service_memory_load", "system_cpu_load", "system_memory_load"}},
	{"health", "Health Metrics", []string{"service_health_percent", "system_health_percent", "overall_health_percent"}},
}

// GoroutineGroup charts the goroutine count
var GoroutineGroup = Group{"goroutines", "Goroutines Metrics", []string{"goroutines"}}

// FindGroup looks a history group up by name
func FindGroup(name string) (Group, bool) {
	if name == GoroutineGroup.Name {
		return GoroutineGroup, true
	}
	for _, g := range HistoryGroups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// HistoryLines turns history points into one series per value key. Keys named
// by the group come first in group order, any others follow sorted. A point
// missing a key repeats the previous value of that series.
func HistoryLines(group Group, points []snapshot.Point) LineSpec {
	spec := LineSpec{Title: group.Title, Format: AxisFormatter(group.Name)}

	keys := append([]string{}, group.Fields...)
	known := map[string]bool{}
	for _, k := range keys {
		known[k] = true
	}
	var extra []string
	present := map[string]bool{}
	for _, p := range points {
		for k := range p.Value {
			present[k] = true
			if !known[k] {
				known[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	sorted := append([]snapshot.Point{}, points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})
	for _, p := range sorted {
		spec.Times = append(spec.Times, p.Time)
	}

	for _, k := range keys {
		if !present[k] {
			continue
		}
		s := Series{Name: k, Values: make([]float64, 0, len(sorted))}
		last := 0.0
		for _, p := range sorted {
			if v, ok := p.Value[k]; ok {
				last = v
			}
			s.Values = append(s.Values, last)
		}
		spec.Series = append(spec.Series, s)
	}
	return spec
}

// GoroutineLine charts the goroutine count history
func GoroutineLine(points []snapshot.Point) LineSpec {
	return HistoryLines(GoroutineGroup, points)
}

// AxisFormatter returns the y-axis label format for a group: memory groups are
// in KB, gc fractions at or below 1 get four decimals
func AxisFormatter(group string) func(float64) string {
	switch group {
	case "heap", "misc", "stack":
		return func(v float64) string { return formatNumber(v) + " KB" }
	case "gc":
		return func(v float64) string {
			if v <= 1 {
				return strconv.FormatFloat(v, 'f', 4, 64)
			}
			return formatNumber(v) + " KB"
		}
	default:
		return formatNumber
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return fmt.Sprintf("%.2f", v)
}
