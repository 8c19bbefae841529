// Package health implements the process health monitor (spec.md §4.7):
// a 60-second CPU/RSS/thread/file-descriptor snapshot with threshold
// warnings, grounded on original_source/core/health_monitor.py's
// get_system_health and _monitoring_loop (500MB RSS, 80% CPU, and 90%
// system-memory warning thresholds carried over unchanged).
package health

import (
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"

	"spikeingest/internal/logging"
)

const (
	memoryWarnMB        = 500.0
	cpuWarnPercent      = 80.0
	systemMemoryWarnPct = 90.0
)

// Monitor samples the current process's resource usage via gopsutil.
type Monitor struct {
	proc      *process.Process
	startedAt time.Time
}

// NewMonitor opens a handle on the running process.
func NewMonitor() (*Monitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	return &Monitor{proc: p, startedAt: time.Now()}, nil
}

// Sample logs one health snapshot and a warning for each threshold the
// process currently exceeds.
func (m *Monitor) Sample() {
	log := logging.WithComponent("health")

	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read process memory")
		return
	}
	rssMB := float64(memInfo.RSS) / 1024 / 1024

	cpuPercent, err := m.proc.CPUPercent()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read process cpu")
	}

	numThreads, err := m.proc.NumThreads()
	if err != nil {
		log.Warn().Err(err).Msg("failed to read thread count")
	}

	numFDs, err := m.proc.NumFDs()
	if err != nil {
		numFDs = 0 // unsupported on this platform
	}

	systemMemPercent := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		systemMemPercent = vm.UsedPercent
	}

	event := log.Info().
		Dur("uptime", time.Since(m.startedAt)).
		Float64("rss_mb", rssMB).
		Float64("cpu_percent", cpuPercent).
		Int32("threads", numThreads).
		Int32("fds", numFDs).
		Float64("system_memory_percent", systemMemPercent)
	event.Msg("process health snapshot")

	if rssMB > memoryWarnMB {
		log.Warn().Float64("rss_mb", rssMB).Msg("high process memory usage")
	}
	if cpuPercent > cpuWarnPercent {
		log.Warn().Float64("cpu_percent", cpuPercent).Msg("high process cpu usage")
	}
	if systemMemPercent > systemMemoryWarnPct {
		log.Warn().Float64("system_memory_percent", systemMemPercent).Msg("high system memory usage")
	}
}
