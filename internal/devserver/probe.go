package devserver

import (
	"context"
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// HostStats describes the machine the service runs on
type HostStats struct {
	PhysicalCores int
	LogicalCores  int
	CPUPercent    float64
	MemTotal      uint64
	MemUsed       uint64
	MemAvailable  uint64
	MemPercent    float64
	BytesSent     uint64
	BytesRecv     uint64
}

// ProcessStats describes the service process
type ProcessStats struct {
	CPUPercent float64
	RSS        uint64
	MemPercent float64
}

// Probe reads host and process statistics
type Probe interface {
	Host(ctx context.Context) (HostStats, error)
	Process(ctx context.Context) (ProcessStats, error)
}

type systemProbe struct {
	proc *process.Process
}

// NewSystemProbe reads statistics for the current process with gopsutil
func NewSystemProbe() (Probe, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open process: %w", err)
	}
	return &systemProbe{proc: proc}, nil
}

func (p *systemProbe) Host(ctx context.Context) (HostStats, error) {
	var h HostStats
	var err error

	if h.LogicalCores, err = cpu.CountsWithContext(ctx, true); err != nil {
		return h, fmt.Errorf("failed to count cores: %w", err)
	}
	if h.PhysicalCores, err = cpu.CountsWithContext(ctx, false); err != nil || h.PhysicalCores == 0 {
		h.PhysicalCores = h.LogicalCores
	}

	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return h, fmt.Errorf("failed to read cpu usage: %w", err)
	}
	if len(percent) > 0 {
		h.CPUPercent = percent[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return h, fmt.Errorf("failed to read memory: %w", err)
	}
	h.MemTotal, h.MemUsed, h.MemAvailable, h.MemPercent = vm.Total, vm.Used, vm.Available, vm.UsedPercent

	// network counters are optional, some sandboxes hide them
	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		h.BytesSent, h.BytesRecv = counters[0].BytesSent, counters[0].BytesRecv
	}
	return h, nil
}

func (p *systemProbe) Process(ctx context.Context) (ProcessStats, error) {
	var s ProcessStats
	var err error

	if s.CPUPercent, err = p.proc.CPUPercentWithContext(ctx); err != nil {
		return s, fmt.Errorf("failed to read process cpu: %w", err)
	}
	info, err := p.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read process memory: %w", err)
	}
	s.RSS = info.RSS
	memPercent, err := p.proc.MemoryPercentWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to read process memory: %w", err)
	}
	s.MemPercent = float64(memPercent)
	return s, nil
}
