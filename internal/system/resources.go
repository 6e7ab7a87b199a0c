// Package system reports the viewer host's own resource usage for the
// dashboard footer.
package system

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// Resources is a snapshot of host CPU and memory usage
type Resources struct {
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryTotal   uint64    `json:"memoryTotal"`
	MemoryUsed    uint64    `json:"memoryUsed"`
	MemoryPercent float64   `json:"memoryPercent"`
	Timestamp     time.Time `json:"timestamp"`
}

// Collect gathers current host resources. Metrics that cannot be read
// are left at zero rather than failing the whole snapshot.
func Collect() Resources {
	res := Resources{Timestamp: time.Now()}

	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		res.CPUPercent = cpuPercent[0]
	}

	if memInfo, err := mem.VirtualMemory(); err == nil {
		res.MemoryTotal = memInfo.Total
		res.MemoryUsed = memInfo.Used
		res.MemoryPercent = memInfo.UsedPercent
	}

	return res
}
