package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) *CaptureMetrics {
	t.Helper()
	m, err := NewCaptureMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func TestNewCaptureMetricsRegistersOnce(t *testing.T) {
	registry := prometheus.NewRegistry()

	_, err := NewCaptureMetrics(registry)
	require.NoError(t, err)

	// The same collector set cannot be registered twice.
	_, err = NewCaptureMetrics(registry)
	assert.Error(t, err)
}

func TestRecordBridgeTrafficComputesSuperseded(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordBridgeTraffic("waveform", 10, 4)
	assert.InDelta(t, 10.0, testutil.ToFloat64(m.bridgePushes.WithLabelValues("waveform")), 1e-9)
	assert.InDelta(t, 4.0, testutil.ToFloat64(m.bridgePulls.WithLabelValues("waveform")), 1e-9)
	assert.InDelta(t, 6.0, testutil.ToFloat64(m.bridgeSuperseded.WithLabelValues("waveform")), 1e-9)

	// Pulls can exceed pushes within one report window; superseded must
	// not go negative.
	m.RecordBridgeTraffic("waveform", 2, 5)
	assert.InDelta(t, 6.0, testutil.ToFloat64(m.bridgeSuperseded.WithLabelValues("waveform")), 1e-9)
}

func TestCounterUpdates(t *testing.T) {
	m := newTestMetrics(t)

	m.UpdateActiveTracks("default", 3)
	assert.InDelta(t, 3.0, testutil.ToFloat64(m.activeTracks.WithLabelValues("default")), 1e-9)

	m.RecordBlocksProcessed("default", 100)
	m.RecordBlocksProcessed("default", 50)
	assert.InDelta(t, 150.0, testutil.ToFloat64(m.blocksProcessed.WithLabelValues("default")), 1e-9)

	m.RecordCaptureEvents("trigger", 7)
	assert.InDelta(t, 7.0, testutil.ToFloat64(m.captureEvents.WithLabelValues("trigger")), 1e-9)

	m.RecordTrackOperation("add", "success")
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.trackOperations.WithLabelValues("add", "success")), 1e-9)
}

func TestDecisionDurationIsAGauge(t *testing.T) {
	m := newTestMetrics(t)

	// The reported value is already a smoothed average; repeated reports
	// must replace, not accumulate.
	m.UpdateDecisionDuration("trigger", 0.002)
	m.UpdateDecisionDuration("trigger", 0.001)
	assert.InDelta(t, 0.001, testutil.ToFloat64(m.decisionDuration.WithLabelValues("trigger")), 1e-9)
}
