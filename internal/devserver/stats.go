package devserver

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"time"

	"github.com/jondoveston/monitop/internal/render"
)

// Health thresholds. Reaching a maximum takes that score to zero.
const (
	maxCPUPercent = 95.0
	maxMemPercent = 95.0
	maxGoroutines = 100000.0
)

// Sample is everything the dev backend knows at one instant
type Sample struct {
	At            time.Time
	StartedAt     time.Time
	Host          HostStats
	Process       ProcessStats
	Mem           runtime.MemStats
	Goroutines    int
	Requests      int64
	TotalDuration time.Duration
}

// Collect reads a sample through probe
func Collect(ctx context.Context, probe Probe, startedAt time.Time, requests int64, total time.Duration) (Sample, error) {
	s := Sample{
		At:            time.Now(),
		StartedAt:     startedAt,
		Goroutines:    runtime.NumGoroutine(),
		Requests:      requests,
		TotalDuration: total,
	}
	var err error
	if s.Host, err = probe.Host(ctx); err != nil {
		return s, err
	}
	if s.Process, err = probe.Process(ctx); err != nil {
		return s, err
	}
	runtime.ReadMemStats(&s.Mem)
	return s, nil
}

func (s Sample) coresUsedByService() float64 {
	return round(s.Process.CPUPercent/100*float64(s.Host.LogicalCores), 3)
}

func (s Sample) coresUsedBySystem() float64 {
	return round(s.Host.CPUPercent/100*float64(s.Host.LogicalCores), 3)
}

func (s Sample) overallLoad() float64 {
	return math.Min(0.5*s.Process.CPUPercent+0.5*s.Process.MemPercent, 100)
}

// ServiceHealth scores the process against the thresholds, 0 to 100
func (s Sample) ServiceHealth() float64 {
	cpu := s.Process.CPUPercent / maxCPUPercent * 100
	mem := s.Process.MemPercent / maxMemPercent * 100
	gor := float64(s.Goroutines) / maxGoroutines * 100
	return clampPercent(100 - (cpu+mem+gor)/3)
}

// SystemHealth scores the host, 0 to 100
func (s Sample) SystemHealth() float64 {
	return clampPercent(100 - (s.Host.CPUPercent+s.Host.MemPercent)/2)
}

// OverallHealth averages the service and system scores
func (s Sample) OverallHealth() float64 {
	return round((s.ServiceHealth()+s.SystemHealth())/2, 2)
}

// Payload renders the sample as a metrics response with memory in unit
func (s Sample) Payload(unit string) map[string]any {
	bytes := func(b uint64) float64 { return toUnit(b, unit) }
	overall := s.OverallHealth()

	return map[string]any{
		"core_statistics": map[string]any{
			"goroutines":     s.Goroutines,
			"requests":       s.Requests,
			"total_duration": round(float64(s.TotalDuration)/float64(time.Millisecond), 3),
			"uptime":         render.FormatUptime(s.At.Sub(s.StartedAt)),
		},
		"load_statistics": map[string]any{
			"service_cpu_load":        percent(s.Process.CPUPercent),
			"system_cpu_load":         percent(s.Host.CPUPercent),
			"total_cpu_load":          percent(math.Min(s.Process.CPUPercent+s.Host.CPUPercent, 100)),
			"service_memory_load":     percent(s.Process.MemPercent),
			"system_memory_load":      percent(s.Host.MemPercent),
			"total_memory_load":       fmt.Sprintf("%.2f %s", bytes(s.Host.MemAvailable), unit),
			"overall_load_of_service": percent(s.overallLoad()),
		},
		"cpu_statistics": map[string]any{
			"total_cores":                      s.Host.PhysicalCores,
			"total_logical_cores":              s.Host.LogicalCores,
			"cores_used_by_service":            s.coresUsedByService(),
			"cores_used_by_system":             s.coresUsedBySystem(),
			"cores_used_by_service_in_percent": percent(s.Process.CPUPercent),
			"cores_used_by_system_in_percent":  percent(s.Host.CPUPercent),
		},
		"memory_statistics": map[string]any{
			"total_system_memory":    bytes(s.Host.MemTotal),
			"memory_used_by_system":  bytes(s.Host.MemUsed),
			"available_memory":       bytes(s.Host.MemAvailable),
			"memory_used_by_service": bytes(s.Mem.Alloc),
			"stack_memory_usage":     bytes(s.Mem.StackInuse),
			"gc_pause_duration":      fmt.Sprintf("%.2f ms", float64(s.Mem.PauseTotalNs)/float64(time.Millisecond)),
			"mem_stats_records":      s.records(unit),
		},
		"network_io": map[string]any{
			"bytes_sent":     bytes(s.Host.BytesSent),
			"bytes_received": bytes(s.Host.BytesRecv),
		},
		"overall_health": map[string]any{
			"service_health_percent": round(s.ServiceHealth(), 2),
			"system_health_percent":  round(s.SystemHealth(), 2),
			"overall_health_percent": overall,
			"health": map[string]any{
				"healthy": overall > 50,
				"message": healthMessage(overall),
			},
		},
	}
}

type memRecord struct {
	Name        string  `json:"record_name"`
	Description string  `json:"record_description"`
	Value       float64 `json:"record_value"`
	Unit        string  `json:"record_unit,omitempty"`
}

func (s Sample) records(unit string) []memRecord {
	m := &s.Mem
	sized := func(name, desc string, b uint64) memRecord {
		return memRecord{Name: name, Description: desc, Value: toUnit(b, unit), Unit: unit}
	}
	count := func(name, desc string, n float64) memRecord {
		return memRecord{Name: name, Description: desc, Value: n}
	}
	return []memRecord{
		sized("Alloc", "Bytes of allocated heap objects.", m.Alloc),
		sized("TotalAlloc", "Cumulative bytes allocated for heap objects.", m.TotalAlloc),
		sized("Sys", "Total bytes of memory obtained from the OS.", m.Sys),
		count("Mallocs", "Cumulative count of heap objects allocated.", float64(m.Mallocs)),
		count("Frees", "Cumulative count of heap objects freed.", float64(m.Frees)),
		sized("HeapAlloc", "Bytes of allocated heap objects.", m.HeapAlloc),
		sized("HeapSys", "Bytes of heap memory obtained from the OS.", m.HeapSys),
		sized("HeapIdle", "Bytes in idle (unused) spans.", m.HeapIdle),
		sized("HeapInuse", "Bytes in in-use spans.", m.HeapInuse),
		sized("HeapReleased", "Bytes of physical memory returned to the OS.", m.HeapReleased),
		count("HeapObjects", "Number of allocated heap objects.", float64(m.HeapObjects)),
		sized("StackInuse", "Bytes in stack spans.", m.StackInuse),
		sized("StackSys", "Bytes of stack memory obtained from the OS.", m.StackSys),
		sized("GCSys", "Bytes of memory in garbage collection metadata.", m.GCSys),
		count("NumGC", "Number of completed GC cycles.", float64(m.NumGC)),
		count("GCCPUFraction", "Fraction of available CPU time used by the GC.", m.GCCPUFraction),
	}
}

// HistoryValues are the fields stored for history charts. Memory is in KB.
func (s Sample) HistoryValues() map[string]float64 {
	m := &s.Mem
	kb := func(b uint64) float64 { return toUnit(b, "KB") }
	return map[string]float64{
		"goroutines": float64(s.Goroutines),

		"heap_alloc":    kb(m.HeapAlloc),
		"heap_sys":      kb(m.HeapSys),
		"heap_inuse":    kb(m.HeapInuse),
		"heap_idle":     kb(m.HeapIdle),
		"heap_released": kb(m.HeapReleased),
		"stack_inuse":   kb(m.StackInuse),
		"stack_sys":     kb(m.StackSys),

		"pause_total_ns":  float64(m.PauseTotalNs),
		"num_gc":          float64(m.NumGC),
		"gc_cpu_fraction": m.GCCPUFraction,

		"m_span_inuse":  kb(m.MSpanInuse),
		"m_span_sys":    kb(m.MSpanSys),
		"m_cache_inuse": kb(m.MCacheInuse),
		"m_cache_sys":   kb(m.MCacheSys),
		"buck_hash_sys": kb(m.BuckHashSys),
		"gc_sys":        kb(m.GCSys),
		"other_sys":     kb(m.OtherSys),

		"total_cores":           float64(s.Host.PhysicalCores),
		"cores_used_by_service": s.coresUsedByService(),
		"cores_used_by_system":  s.coresUsedBySystem(),

		"overall_load_of_service": round(s.overallLoad(), 2),
		"service_cpu_load":        round(s.Process.CPUPercent, 2),
		"service_memory_load":     round(s.Process.MemPercent, 2),
		"system_cpu_load":         round(s.Host.CPUPercent, 2),
		"system_memory_load":      round(s.Host.MemPercent, 2),

		"service_health_percent": round(s.ServiceHealth(), 2),
		"system_health_percent":  round(s.SystemHealth(), 2),
		"overall_health_percent": s.OverallHealth(),
	}
}

func healthMessage(score float64) string {
	switch {
	case score >= 90:
		return "[Outstanding] Everything is running smoothly."
	case score >= 85:
		return "[Impressive] Doing great, a few hiccups need a tweak."
	case score >= 70:
		return "[Solid] Holding up well, some fine-tuning would help."
	case score >= 50:
		return "[Fair] Functional, time to check those resources."
	case score >= 30:
		return "[Wobbly] Feeling the heat, dig into the logs."
	default:
		return "[Oops] In rough shape, needs attention now."
	}
}

func toUnit(b uint64, unit string) float64 {
	switch unit {
	case "KB":
		return round(float64(b)/1024, 2)
	case "MB":
		return round(float64(b)/1048576, 2)
	default:
		return float64(b)
	}
}

func percent(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clampPercent(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
