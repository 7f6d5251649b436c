package realtime

import (
	"log/slog"
	"time"

	"github.com/tphakala/oscil-go/internal/audio"
	"github.com/tphakala/oscil-go/internal/capture"
	"github.com/tphakala/oscil-go/internal/conf"
	"github.com/tphakala/oscil-go/internal/diagnostics"
	"github.com/tphakala/oscil-go/internal/observability"
	"github.com/tphakala/oscil-go/internal/timing"
)

// statsLogInterval is how often the consumer logs a progress summary.
const statsLogInterval = 30 * time.Second

// consumer is the non-real-time side of the bridges. It polls the latest
// waveform and measurement snapshots at the configured refresh rate and
// feeds the Prometheus collectors.
type consumer struct {
	settings     *conf.Settings
	engine       *audio.MultiTrackEngine
	timingEngine *timing.TimingEngine
	source       *capture.Source
	metrics      *observability.Metrics
	logger       *slog.Logger

	perf *diagnostics.PerformanceMonitor

	// Snapshots are reused across polls; AudioSnapshot in particular is
	// too large to allocate per frame.
	waveform    *audio.AudioSnapshot
	measurement audio.MeasurementSnapshot

	// Previous counter values for delta reporting.
	prevBlocks         uint64
	prevSamples        uint64
	prevCaptureEvents  uint64
	prevDetections     uint64
	prevMissedTriggers uint64
	prevWaveformPushes uint64
	prevWaveformPulls  uint64
	prevMeasurePushes  uint64
	prevMeasurePulls   uint64
}

func newConsumer(settings *conf.Settings, engine *audio.MultiTrackEngine, timingEngine *timing.TimingEngine, source *capture.Source, metrics *observability.Metrics, logger *slog.Logger) *consumer {
	return &consumer{
		settings:     settings,
		engine:       engine,
		timingEngine: timingEngine,
		source:       source,
		metrics:      metrics,
		logger:       logger,
		perf:         diagnostics.NewPerformanceMonitor(float64(settings.Realtime.RefreshRate)),
		waveform:     &audio.AudioSnapshot{},
	}
}

// run polls until quitChan closes.
func (c *consumer) run(quitChan <-chan struct{}) {
	interval := time.Second / time.Duration(c.settings.Realtime.RefreshRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(statsLogInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-quitChan:
			return
		case event := <-c.source.Events():
			c.logger.Debug("capture event",
				"frame", event.Frame,
				"mode", event.Mode.String())
		case <-ticker.C:
			c.poll()
		case <-statsTicker.C:
			c.logProgress()
		}
	}
}

// poll pulls the freshest snapshots and updates the collectors.
func (c *consumer) poll() {
	start := c.perf.StartTiming()

	if c.engine.WaveformBridge().Pull(c.waveform) {
		c.perf.RecordFrame()
	}
	c.engine.MeasurementBridge().Pull(&c.measurement)

	c.updateMetrics()
	c.perf.EndTiming(start)
}

func (c *consumer) updateMetrics() {
	capMetrics := c.metrics.Capture
	device := c.source.DeviceName()
	mode := c.timingEngine.Mode()

	capMetrics.UpdateActiveTracks(device, c.engine.NumTracks())

	stats := c.engine.Stats()
	capMetrics.RecordBlocksProcessed(device, stats.BlocksProcessed-c.prevBlocks)
	capMetrics.RecordSamplesCaptured(device, stats.SamplesProcessed-c.prevSamples)
	c.prevBlocks = stats.BlocksProcessed
	c.prevSamples = stats.SamplesProcessed

	waveformBridge := c.engine.WaveformBridge()
	pushes, pulls := waveformBridge.TotalPushed(), waveformBridge.TotalPulled()
	capMetrics.RecordBridgeTraffic("waveform", pushes-c.prevWaveformPushes, pulls-c.prevWaveformPulls)
	c.prevWaveformPushes, c.prevWaveformPulls = pushes, pulls

	measurementBridge := c.engine.MeasurementBridge()
	pushes, pulls = measurementBridge.TotalPushed(), measurementBridge.TotalPulled()
	capMetrics.RecordBridgeTraffic("measurement", pushes-c.prevMeasurePushes, pulls-c.prevMeasurePulls)
	c.prevMeasurePushes, c.prevMeasurePulls = pushes, pulls

	state := c.timingEngine.State()
	capMetrics.RecordCaptureEvents(mode.String(), state.CaptureEvents-c.prevCaptureEvents)
	c.prevCaptureEvents = state.CaptureEvents

	detector := c.timingEngine.TriggerConfig().Type.String()
	perfStats := c.timingEngine.PerformanceStats()
	capMetrics.RecordTriggerDetections(detector, perfStats.TriggerDetections-c.prevDetections)
	capMetrics.RecordMissedTriggers(detector, state.MissedTriggers-c.prevMissedTriggers)
	c.prevDetections = perfStats.TriggerDetections
	c.prevMissedTriggers = state.MissedTriggers

	capMetrics.UpdateDecisionDuration(mode.String(), perfStats.AverageProcessingTimeMs/1000.0)
}

// logProgress emits a periodic summary of capture health.
func (c *consumer) logProgress() {
	stats := c.engine.Stats()
	state := c.timingEngine.State()
	frameStats := c.perf.Stats()

	args := []any{
		"device", c.source.DeviceName(),
		"blocks_processed", stats.BlocksProcessed,
		"capture_events", state.CaptureEvents,
		"dropped_bytes", c.source.DroppedBytes(),
		"consumer_fps", frameStats.ActualFPS,
	}
	if c.measurement.LevelsValid {
		args = append(args,
			"peak_left", c.measurement.PeakLevels[0],
			"rms_left", c.measurement.RMSLevels[0])
	}
	if c.measurement.CorrelationValid {
		args = append(args, "correlation", c.measurement.Correlation)
	}

	c.logger.Info("capture running", args...)
}
