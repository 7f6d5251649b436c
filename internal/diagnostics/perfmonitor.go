// Package diagnostics provides frame timing statistics and system resource
// sampling for the capture pipeline.
package diagnostics

import (
	"math"
	"sync"
	"time"
)

// maxTimingSamples is the size of the rolling frame-time window.
const maxTimingSamples = 256

// FrameStats summarizes recent frame timings.
type FrameStats struct {
	AverageMs   float64
	MinMs       float64
	MaxMs       float64
	StdDevMs    float64
	TotalFrames uint64
	TargetFPS   float64
	ActualFPS   float64
}

// PerformanceMonitor records per-frame processing durations and frame
// arrival times over a rolling window. Safe for one recorder goroutine and
// any number of readers.
type PerformanceMonitor struct {
	mu          sync.Mutex
	frameTimes  [maxTimingSamples]float64
	sampleIndex int
	sampleCount int
	totalFrames uint64
	lastFrame   time.Time
	frameGapsMs [maxTimingSamples]float64
	gapIndex    int
	gapCount    int
	targetFPS   float64
}

// NewPerformanceMonitor creates a monitor with the given display target.
func NewPerformanceMonitor(targetFPS float64) *PerformanceMonitor {
	if targetFPS <= 0 {
		targetFPS = 60
	}
	return &PerformanceMonitor{targetFPS: targetFPS}
}

// StartTiming returns a handle for EndTiming.
func (p *PerformanceMonitor) StartTiming() time.Time {
	return time.Now()
}

// EndTiming records the duration since the StartTiming handle.
func (p *PerformanceMonitor) EndTiming(start time.Time) {
	ms := float64(time.Since(start)) / float64(time.Millisecond)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameTimes[p.sampleIndex] = ms
	p.sampleIndex = (p.sampleIndex + 1) % maxTimingSamples
	if p.sampleCount < maxTimingSamples {
		p.sampleCount++
	}
	p.totalFrames++
}

// RecordFrame marks a frame boundary for FPS calculation.
func (p *PerformanceMonitor) RecordFrame() {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.lastFrame.IsZero() {
		gap := float64(now.Sub(p.lastFrame)) / float64(time.Millisecond)
		p.frameGapsMs[p.gapIndex] = gap
		p.gapIndex = (p.gapIndex + 1) % maxTimingSamples
		if p.gapCount < maxTimingSamples {
			p.gapCount++
		}
	}
	p.lastFrame = now
}

// Stats computes the current rolling statistics.
func (p *PerformanceMonitor) Stats() FrameStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := FrameStats{
		TotalFrames: p.totalFrames,
		TargetFPS:   p.targetFPS,
	}

	if p.sampleCount > 0 {
		sum := 0.0
		stats.MinMs = math.Inf(1)
		for i := range p.sampleCount {
			v := p.frameTimes[i]
			sum += v
			stats.MinMs = math.Min(stats.MinMs, v)
			stats.MaxMs = math.Max(stats.MaxMs, v)
		}
		stats.AverageMs = sum / float64(p.sampleCount)

		variance := 0.0
		for i := range p.sampleCount {
			d := p.frameTimes[i] - stats.AverageMs
			variance += d * d
		}
		stats.StdDevMs = math.Sqrt(variance / float64(p.sampleCount))
	}

	if p.gapCount > 0 {
		sum := 0.0
		for i := range p.gapCount {
			sum += p.frameGapsMs[i]
		}
		avgGap := sum / float64(p.gapCount)
		if avgGap > 0 {
			stats.ActualFPS = 1000 / avgGap
		}
	}

	return stats
}

// Reset clears all recorded samples and counters.
func (p *PerformanceMonitor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sampleIndex = 0
	p.sampleCount = 0
	p.gapIndex = 0
	p.gapCount = 0
	p.totalFrames = 0
	p.lastFrame = time.Time{}
}

// Acceptable reports whether recent timings meet the given budget: a
// minimum achieved FPS and a maximum frame-time variance.
func (p *PerformanceMonitor) Acceptable(minFPS, maxVarianceMs float64) bool {
	stats := p.Stats()
	if stats.ActualFPS > 0 && stats.ActualFPS < minFPS {
		return false
	}
	return stats.StdDevMs <= maxVarianceMs
}
