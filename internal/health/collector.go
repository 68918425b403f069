package health

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Disk is the usage of one mounted filesystem.
type Disk struct {
	Mountpoint  string
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
}

// FreePercent returns the share of free space.
func (d Disk) FreePercent() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Free) / float64(d.Total) * 100
}

// Memory is the host RAM usage.
type Memory struct {
	Total       uint64
	Used        uint64
	Available   uint64
	UsedPercent float64
}

// Host describes the machine the bot runs on.
type Host struct {
	Uptime          time.Duration
	Platform        string
	PlatformVersion string
	Kernel          string
	Arch            string
	Load1           float64
	Load5           float64
	Load15          float64
}

// Collector collects OS metrics.
type Collector interface {
	Disks(ctx context.Context) ([]Disk, error)
	Memory(ctx context.Context) (Memory, error)
	Host(ctx context.Context) (Host, error)
}

// SystemCollector reads metrics of the local machine through gopsutil.
type SystemCollector struct{}

func (SystemCollector) Disks(ctx context.Context) ([]Disk, error) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	seen := make(map[string]bool)
	var out []Disk
	for _, p := range parts {
		if seen[p.Mountpoint] {
			continue
		}
		seen[p.Mountpoint] = true

		u, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil || u.Total == 0 {
			continue
		}
		out = append(out, Disk{
			Mountpoint:  p.Mountpoint,
			Total:       u.Total,
			Used:        u.Used,
			Free:        u.Free,
			UsedPercent: u.UsedPercent,
		})
	}
	return out, nil
}

func (SystemCollector) Memory(ctx context.Context) (Memory, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Memory{}, fmt.Errorf("virtual memory: %w", err)
	}
	return Memory{
		Total:       vm.Total,
		Used:        vm.Used,
		Available:   vm.Available,
		UsedPercent: vm.UsedPercent,
	}, nil
}

func (SystemCollector) Host(ctx context.Context) (Host, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return Host{}, fmt.Errorf("host info: %w", err)
	}
	h := Host{
		Uptime:          time.Duration(info.Uptime) * time.Second,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		Kernel:          info.KernelVersion,
		Arch:            info.KernelArch,
	}
	// Load average is unavailable on some platforms; the rest is still useful.
	if avg, err := load.AvgWithContext(ctx); err == nil {
		h.Load1, h.Load5, h.Load15 = avg.Load1, avg.Load5, avg.Load15
	}
	return h, nil
}
