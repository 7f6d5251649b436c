package diagnostics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/oscil-go/internal/logging"
)

// ResourceSample is one reading of host resource usage.
type ResourceSample struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsedMB  float64
	Timestamp     time.Time
}

// SystemMonitor periodically samples CPU and memory usage and logs when
// usage crosses the warning threshold. Real-time audio capture is sensitive
// to host load, so sustained high CPU is worth surfacing even without a
// metrics scraper attached.
type SystemMonitor struct {
	interval   time.Duration
	warnCPU    float64
	warnMemory float64
	logger     *slog.Logger

	mu          sync.Mutex
	lastSample  ResourceSample
	sampleReady bool
}

// NewSystemMonitor creates a monitor sampling at the given interval.
func NewSystemMonitor(interval time.Duration) *SystemMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger := logging.ForService("diagnostics")
	if logger == nil {
		logger = slog.Default()
	}
	return &SystemMonitor{
		interval:   interval,
		warnCPU:    85,
		warnMemory: 90,
		logger:     logger,
	}
}

// Run samples until the context is canceled. Blocking; run in a goroutine.
func (m *SystemMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *SystemMonitor) sample() {
	s := ResourceSample{Timestamp: time.Now()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		s.CPUPercent = percents[0]
	} else if err != nil {
		m.logger.Debug("cpu sampling failed", "error", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = vm.UsedPercent
		s.MemoryUsedMB = float64(vm.Used) / (1024 * 1024)
	} else {
		m.logger.Debug("memory sampling failed", "error", err)
	}

	m.mu.Lock()
	m.lastSample = s
	m.sampleReady = true
	m.mu.Unlock()

	if s.CPUPercent >= m.warnCPU {
		m.logger.Warn("high CPU usage",
			"cpu_percent", s.CPUPercent,
			"threshold", m.warnCPU)
	}
	if s.MemoryPercent >= m.warnMemory {
		m.logger.Warn("high memory usage",
			"memory_percent", s.MemoryPercent,
			"threshold", m.warnMemory)
	}
}

// LastSample returns the most recent reading, or false before the first
// sample completes.
func (m *SystemMonitor) LastSample() (ResourceSample, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSample, m.sampleReady
}
