// Package realtime wires the capture source, engines and telemetry together
// and runs them until a termination signal arrives.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tphakala/oscil-go/internal/audio"
	"github.com/tphakala/oscil-go/internal/capture"
	"github.com/tphakala/oscil-go/internal/conf"
	"github.com/tphakala/oscil-go/internal/diagnostics"
	oerrors "github.com/tphakala/oscil-go/internal/errors"
	"github.com/tphakala/oscil-go/internal/logging"
	"github.com/tphakala/oscil-go/internal/observability"
	"github.com/tphakala/oscil-go/internal/timing"
)

// resourceSampleInterval is how often the system monitor polls CPU and
// memory usage.
const resourceSampleInterval = 10 * time.Second

// Run starts realtime capture and blocks until SIGINT/SIGTERM or an
// unrecoverable device failure.
func Run(settings *conf.Settings) error {
	logger := logging.ForService("realtime")
	if logger == nil {
		logger = slog.Default()
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("error initializing metrics: %w", err)
	}

	engine := audio.NewMultiTrackEngine(settings.Audio.TrackBufferSize)
	timingEngine := timing.NewTimingEngine()
	if err := configureTiming(settings, timingEngine); err != nil {
		return err
	}

	if err := addInputTracks(settings, engine); err != nil {
		metrics.Capture.RecordTrackOperation("add", "error")
		return err
	}
	metrics.Capture.RecordTrackOperation("add", "success")

	source := capture.NewSource(settings, engine, timingEngine, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("error starting audio capture: %w", err)
	}

	logger.Info("realtime capture started",
		"device", source.DeviceName(),
		"mode", timingEngine.Mode().String(),
		"tracks", engine.NumTracks())

	// quitChan signals all goroutines to stop. shutdown is safe to call
	// from multiple paths.
	quitChan := make(chan struct{})
	var quitOnce sync.Once
	shutdown := func() { quitOnce.Do(func() { close(quitChan) }) }
	var wg sync.WaitGroup

	startTelemetryEndpoint(&wg, settings, metrics, quitChan)

	sysMonitor := diagnostics.NewSystemMonitor(resourceSampleInterval)
	wg.Go(func() {
		sysMonitor.Run(ctx)
	})

	consumer := newConsumer(settings, engine, timingEngine, source, metrics, logger)
	wg.Go(func() {
		consumer.run(quitChan)
	})

	monitorSignals(shutdown, logger)

	select {
	case <-quitChan:
	case err := <-source.Failures():
		logger.Error("audio capture failed", "error", err)
		shutdown()
	}

	cancel()
	source.Stop()
	wg.Wait()

	logger.Info("realtime capture stopped",
		"blocks_processed", engine.Stats().BlocksProcessed,
		"capture_events", timingEngine.State().CaptureEvents)
	return nil
}

// configureTiming applies the timing section of the settings to the engine.
func configureTiming(settings *conf.Settings, engine *timing.TimingEngine) error {
	mode, ok := timing.ParseTimingMode(settings.Timing.Mode)
	if !ok {
		return oerrors.Newf("unknown timing mode %q", settings.Timing.Mode).
			Component("realtime").
			Category(oerrors.CategoryConfiguration).
			Build()
	}

	triggerType, ok := timing.ParseTriggerType(settings.Timing.Trigger.Type)
	if !ok {
		return oerrors.Newf("unknown trigger type %q", settings.Timing.Trigger.Type).
			Component("realtime").
			Category(oerrors.CategoryConfiguration).
			Build()
	}

	triggerEdge, ok := timing.ParseTriggerEdge(settings.Timing.Trigger.Edge)
	if !ok {
		return oerrors.Newf("unknown trigger edge %q", settings.Timing.Trigger.Edge).
			Component("realtime").
			Category(oerrors.CategoryConfiguration).
			Build()
	}

	triggerConfig := timing.TriggerConfig{
		Type:               triggerType,
		Edge:               triggerEdge,
		Threshold:          float32(settings.Timing.Trigger.Threshold),
		Hysteresis:         float32(settings.Timing.Trigger.Hysteresis),
		HoldOffSamples:     settings.Timing.Trigger.HoldOffSamples,
		SlopeWindowSamples: settings.Timing.Trigger.SlopeWindowSize,
		Enabled:            settings.Timing.Trigger.Enabled,
	}
	if !engine.SetTriggerConfig(triggerConfig) {
		return oerrors.Newf("invalid trigger configuration").
			Component("realtime").
			Category(oerrors.CategoryValidation).
			Context("threshold", settings.Timing.Trigger.Threshold).
			Context("holdoff_samples", settings.Timing.Trigger.HoldOffSamples).
			Build()
	}

	musicalConfig := timing.MusicalConfig{
		BeatDivision:       settings.Timing.Musical.BeatDivision,
		BarLength:          settings.Timing.Musical.BarLength,
		SnapToBeats:        settings.Timing.Musical.SnapToBeats,
		FollowTempoChanges: settings.Timing.Musical.FollowTempoChanges,
		CustomBPM:          settings.Timing.Musical.CustomBPM,
	}
	if !engine.SetMusicalConfig(musicalConfig) {
		return oerrors.Newf("invalid musical timing configuration").
			Component("realtime").
			Category(oerrors.CategoryValidation).
			Context("beat_division", settings.Timing.Musical.BeatDivision).
			Context("custom_bpm", settings.Timing.Musical.CustomBPM).
			Build()
	}

	timeBasedConfig := timing.TimeBasedConfig{
		IntervalMs:        settings.Timing.TimeBased.IntervalMs,
		DriftCompensation: settings.Timing.TimeBased.DriftCompensation,
		AdaptToSampleRate: settings.Timing.TimeBased.AdaptToSampleRate,
	}
	if !engine.SetTimeBasedConfig(timeBasedConfig) {
		return oerrors.Newf("invalid time based configuration").
			Component("realtime").
			Category(oerrors.CategoryValidation).
			Context("interval_ms", settings.Timing.TimeBased.IntervalMs).
			Build()
	}

	if !engine.SetMode(mode) {
		return oerrors.Newf("timing mode %q rejected", settings.Timing.Mode).
			Component("realtime").
			Category(oerrors.CategoryValidation).
			Build()
	}

	return nil
}

// addInputTracks creates one capture track per configured input channel.
func addInputTracks(settings *conf.Settings, engine *audio.MultiTrackEngine) error {
	for ch := range settings.Audio.Channels {
		id := engine.AddTrack(fmt.Sprintf("Input %d", ch+1), ch)
		if !id.IsValid() {
			return oerrors.Newf("failed to add track for channel %d", ch).
				Component("realtime").
				Category(oerrors.CategoryLimit).
				Build()
		}
	}
	return nil
}

// startTelemetryEndpoint starts the Prometheus endpoint when enabled.
func startTelemetryEndpoint(wg *sync.WaitGroup, settings *conf.Settings, metrics *observability.Metrics, quitChan chan struct{}) {
	if !settings.Realtime.Telemetry.Enabled {
		return
	}

	endpoint, err := observability.NewEndpoint(settings, metrics)
	if err != nil {
		logging.Error("error initializing telemetry endpoint", "error", err)
		return
	}
	endpoint.Start(wg, quitChan)
}

// monitorSignals triggers shutdown on SIGINT or SIGTERM.
func monitorSignals(shutdown func(), logger *slog.Logger) {
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

		<-sigChan

		logger.Info("received shutdown signal")
		shutdown()
	}()
}
