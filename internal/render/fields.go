package render

import (
	"strconv"
	"time"

	"github.com/jondoveston/monitop/internal/client"
)

// DashboardFields are the six stat cells at the top of the dashboard
var DashboardFields = []Field{
	{ID: "goroutines", Label: "Go Routines", Info: "Number of goroutines that are currently running", Value: Path("core_statistics.goroutines")},
	{ID: "load", Label: "Load", Info: "The load average of the system", Value: Path("load_statistics.overall_load_of_service")},
	{ID: "cores", Label: "Cores", Info: "Number of CPU cores", Value: Join(" / ", Path("cpu_statistics.cores_used_by_service"), Path("cpu_statistics.total_cores"))},
	{ID: "memory", Label: "Memory", Info: "Memory used by the service", Value: WithUnit("memory_statistics.memory_used_by_service")},
	{ID: "cpu_usage", Label: "CPU Usage", Info: "CPU usage of the service", Value: Path("cpu_statistics.cores_used_by_service_in_percent")},
	{ID: "uptime", Label: "Uptime", Info: "Uptime of the service", Value: Path("core_statistics.uptime")},
}

// RuntimeFields is the detail grid under the charts
var RuntimeFields = []Field{
	{ID: "service_cpu_load", Label: "Service CPU Load", Info: "CPU usage of the service", Value: Percent("load_statistics.service_cpu_load")},
	{ID: "system_cpu_load", Label: "System CPU Load", Info: "CPU usage of the system", Value: Percent("load_statistics.system_cpu_load")},
	{ID: "total_cpu_load", Label: "Total CPU Load", Info: "CPU usage of the system and the service", Value: Percent("load_statistics.total_cpu_load")},
	{ID: "service_memory_load", Label: "Service Memory Load", Info: "Memory usage of the service", Value: Percent("load_statistics.service_memory_load")},
	{ID: "system_memory_load", Label: "System Memory Load", Info: "Memory usage of the system", Value: Percent("load_statistics.system_memory_load")},
	{ID: "total_logical_cores", Label: "Logical Cores", Info: "Number of logical cores the system has", Value: Path("cpu_statistics.total_logical_cores")},
	{ID: "cores_used_by_system", Label: "Cores Used by System", Info: "Number of cores the system is using", Value: Join(" / ", Path("cpu_statistics.cores_used_by_system"), Path("cpu_statistics.cores_used_by_system_in_percent"))},
	{ID: "total_system_memory", Label: "System Memory", Info: "Total memory the system has", Value: WithUnit("memory_statistics.total_system_memory")},
	{ID: "memory_used_by_system", Label: "Memory Used by System", Info: "Memory the system is using", Value: WithUnit("memory_statistics.memory_used_by_system")},
	{ID: "available_memory", Label: "Available Memory", Info: "Memory available on the system", Value: WithUnit("memory_statistics.available_memory")},
	{ID: "stack_memory_usage", Label: "Stack Memory", Info: "Stack memory in use by the service", Value: WithUnit("memory_statistics.stack_memory_usage")},
	{ID: "gc_pause_duration", Label: "GC Pause", Info: "Total garbage collection pause time", Value: Path("memory_statistics.gc_pause_duration")},
	{ID: "requests", Label: "Requests Served", Info: "The total number of requests handled by the service", Value: Path("core_statistics.requests")},
	{ID: "avg_response", Label: "Average API Response Time", Info: "The average time taken to respond to an API request", Value: AvgResponse("core_statistics.requests", "core_statistics.total_duration")},
}

// ServiceInfoFields render the service-info payload
var ServiceInfoFields = []Field{
	{ID: "service_name", Label: "Service Name", Info: "Configured when the service started monitoring", Value: Path("service_name")},
	{ID: "go_version", Label: "Go Version", Info: "The Go version the service runs on", Value: Path("go_version")},
	{ID: "service_start_time", Label: "Service Start Time", Info: "When the service process started", Value: StartTime("service_start_time")},
	{ID: "process_id", Label: "Process ID", Info: "Process id of the service", Value: Path("process_id")},
}

// ServiceInfoValues exposes a service-info payload to Render
func ServiceInfoValues(info *client.ServiceInfo) Values {
	if info == nil {
		return nil
	}
	v := Values{}
	if info.ServiceName != "" {
		v["service_name"] = info.ServiceName
	}
	if info.GoVersion != "" {
		v["go_version"] = info.GoVersion
	}
	if !info.ServiceStartTime.IsZero() {
		v["service_start_time"] = info.ServiceStartTime
	}
	if info.ProcessID != 0 {
		v["process_id"] = strconv.Itoa(info.ProcessID)
	}
	return v
}

// Uptime renders how long ago start was, the way the service formats uptime
func Uptime(start, now time.Time) string {
	return FormatUptime(now.Sub(start))
}

// FormatUptime renders d in hours, minutes or seconds with two decimals
func FormatUptime(d time.Duration) string {
	switch {
	case d.Hours() > 1:
		return strconv.FormatFloat(d.Hours(), 'f', 2, 64) + " h"
	case d.Minutes() > 1:
		return strconv.FormatFloat(d.Minutes(), 'f', 2, 64) + " m"
	default:
		return strconv.FormatFloat(d.Seconds(), 'f', 2, 64) + " s"
	}
}
