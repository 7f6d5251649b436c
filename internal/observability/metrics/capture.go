// Package metrics provides capture pipeline metrics for observability
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ShutdownTimeout bounds the telemetry server shutdown.
const ShutdownTimeout = 5 * time.Second

// CaptureMetrics contains Prometheus metrics for the audio capture pipeline
type CaptureMetrics struct {
	registry *prometheus.Registry

	// Engine metrics
	activeTracks    *prometheus.GaugeVec
	blocksProcessed *prometheus.CounterVec
	samplesCaptured *prometheus.CounterVec
	trackOperations *prometheus.CounterVec

	// Bridge metrics
	bridgePushes     *prometheus.CounterVec
	bridgePulls      *prometheus.CounterVec
	bridgeSuperseded *prometheus.CounterVec

	// Timing metrics
	captureEvents     *prometheus.CounterVec
	triggerDetections *prometheus.CounterVec
	missedTriggers    *prometheus.CounterVec
	decisionDuration  *prometheus.GaugeVec

	// Device metrics
	deviceStarts *prometheus.CounterVec
	deviceErrors *prometheus.CounterVec
	callbackGap  *prometheus.HistogramVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewCaptureMetrics creates and registers new capture metrics
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// initMetrics initializes all Prometheus metrics
func (m *CaptureMetrics) initMetrics() {
	m.activeTracks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oscil_active_tracks",
			Help: "Number of live capture tracks",
		},
		[]string{"source"},
	)

	m.blocksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_blocks_processed_total",
			Help: "Total number of audio blocks routed through the engine",
		},
		[]string{"source"},
	)

	m.samplesCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_samples_captured_total",
			Help: "Total number of samples captured per channel",
		},
		[]string{"source"},
	)

	m.trackOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_track_operations_total",
			Help: "Total number of structural track operations",
		},
		[]string{"operation", "status"},
	)

	m.bridgePushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_bridge_pushes_total",
			Help: "Total snapshots published across a bridge",
		},
		[]string{"bridge"},
	)

	m.bridgePulls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_bridge_pulls_total",
			Help: "Total snapshots consumed from a bridge",
		},
		[]string{"bridge"},
	)

	m.bridgeSuperseded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_bridge_superseded_total",
			Help: "Snapshots overwritten before the consumer pulled them",
		},
		[]string{"bridge"},
	)

	m.captureEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_capture_events_total",
			Help: "Capture events fired by the timing engine",
		},
		[]string{"mode"},
	)

	m.triggerDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_trigger_detections_total",
			Help: "Signal trigger detections by detector type",
		},
		[]string{"detector"},
	)

	m.missedTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_missed_triggers_total",
			Help: "Trigger crossings suppressed by hold-off",
		},
		[]string{"detector"},
	)

	m.decisionDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oscil_timing_decision_avg_seconds",
			Help: "Exponentially smoothed average time spent in the per-block capture decision",
		},
		[]string{"mode"},
	)

	m.deviceStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_device_starts_total",
			Help: "Capture device start attempts",
		},
		[]string{"device", "status"},
	)

	m.deviceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oscil_device_errors_total",
			Help: "Capture device errors by type",
		},
		[]string{"device", "error_type"},
	)

	m.callbackGap = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "oscil_callback_gap_seconds",
			Help:    "Wall-clock gap between successive device callbacks",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~1s
		},
		[]string{"device"},
	)

	m.collectors = []prometheus.Collector{
		m.activeTracks,
		m.blocksProcessed,
		m.samplesCaptured,
		m.trackOperations,
		m.bridgePushes,
		m.bridgePulls,
		m.bridgeSuperseded,
		m.captureEvents,
		m.triggerDetections,
		m.missedTriggers,
		m.decisionDuration,
		m.deviceStarts,
		m.deviceErrors,
		m.callbackGap,
	}
}

// Describe implements the Collector interface
func (m *CaptureMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *CaptureMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// UpdateActiveTracks sets the live track count for a source
func (m *CaptureMetrics) UpdateActiveTracks(source string, count int) {
	m.activeTracks.WithLabelValues(source).Set(float64(count))
}

// RecordBlocksProcessed adds to the processed block counter
func (m *CaptureMetrics) RecordBlocksProcessed(source string, blocks uint64) {
	m.blocksProcessed.WithLabelValues(source).Add(float64(blocks))
}

// RecordSamplesCaptured adds to the captured sample counter
func (m *CaptureMetrics) RecordSamplesCaptured(source string, samples uint64) {
	m.samplesCaptured.WithLabelValues(source).Add(float64(samples))
}

// RecordTrackOperation counts a structural track operation
func (m *CaptureMetrics) RecordTrackOperation(operation, status string) {
	m.trackOperations.WithLabelValues(operation, status).Inc()
}

// RecordBridgeTraffic adds push/pull/superseded deltas for a bridge
func (m *CaptureMetrics) RecordBridgeTraffic(bridge string, pushes, pulls uint64) {
	m.bridgePushes.WithLabelValues(bridge).Add(float64(pushes))
	m.bridgePulls.WithLabelValues(bridge).Add(float64(pulls))
	if pushes > pulls {
		m.bridgeSuperseded.WithLabelValues(bridge).Add(float64(pushes - pulls))
	}
}

// RecordCaptureEvents adds fired capture events for a timing mode
func (m *CaptureMetrics) RecordCaptureEvents(mode string, events uint64) {
	m.captureEvents.WithLabelValues(mode).Add(float64(events))
}

// RecordTriggerDetections adds detector fires for a trigger type
func (m *CaptureMetrics) RecordTriggerDetections(detector string, detections uint64) {
	m.triggerDetections.WithLabelValues(detector).Add(float64(detections))
}

// RecordMissedTriggers adds hold-off suppressed crossings for a trigger type
func (m *CaptureMetrics) RecordMissedTriggers(detector string, missed uint64) {
	m.missedTriggers.WithLabelValues(detector).Add(float64(missed))
}

// UpdateDecisionDuration sets the smoothed average capture decision time in
// seconds. The average is maintained by the timing engine, so this is a
// gauge rather than a histogram of raw decisions.
func (m *CaptureMetrics) UpdateDecisionDuration(mode string, seconds float64) {
	m.decisionDuration.WithLabelValues(mode).Set(seconds)
}

// RecordDeviceStart counts a device start attempt
func (m *CaptureMetrics) RecordDeviceStart(device, status string) {
	m.deviceStarts.WithLabelValues(device, status).Inc()
}

// RecordDeviceError counts a device error
func (m *CaptureMetrics) RecordDeviceError(device, errorType string) {
	m.deviceErrors.WithLabelValues(device, errorType).Inc()
}

// RecordCallbackGap observes the gap between device callbacks in seconds
func (m *CaptureMetrics) RecordCallbackGap(device string, seconds float64) {
	m.callbackGap.WithLabelValues(device).Observe(seconds)
}
