package timing

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/oscil-go/internal/logging"
)

const (
	defaultSampleRate = 44100.0

	// freeRunningIntervalBase is the free-running capture interval in
	// samples at the default rate (~23 ms).
	freeRunningIntervalBase = 1024

	// processingTimeSmoothing is the exponential smoothing factor for the
	// average decision-time statistic.
	processingTimeSmoothing = 0.95
)

// TimingState is a point-in-time view of the engine for UI and diagnostics.
type TimingState struct {
	Mode             TimingMode
	Active           bool
	SamplesProcessed uint64
	CaptureEvents    uint64
	MissedTriggers   uint64
	CurrentBPM       float64
	SampleRate       float64
}

// PerformanceStats is a snapshot of the engine's internal counters.
type PerformanceStats struct {
	ProcessBlockCalls       uint64
	TimingCalculations      uint64
	TriggerDetections       uint64
	ModeChanges             uint64
	AverageProcessingTimeMs float64
	MaxProcessingTimeMs     float64
}

type perfCounters struct {
	processBlockCalls  atomic.Uint64
	timingCalculations atomic.Uint64
	triggerDetections  atomic.Uint64
	modeChanges        atomic.Uint64
	avgProcessingBits  atomic.Uint64 // float64 bits
	maxProcessingBits  atomic.Uint64 // float64 bits
}

func (p *perfCounters) reset() {
	p.processBlockCalls.Store(0)
	p.timingCalculations.Store(0)
	p.triggerDetections.Store(0)
	p.modeChanges.Store(0)
	p.avgProcessingBits.Store(0)
	p.maxProcessingBits.Store(0)
}

func (p *perfCounters) recordDecisionTime(ms float64) {
	for {
		old := p.maxProcessingBits.Load()
		if ms <= math.Float64frombits(old) {
			break
		}
		if p.maxProcessingBits.CompareAndSwap(old, math.Float64bits(ms)) {
			break
		}
	}

	avg := math.Float64frombits(p.avgProcessingBits.Load())
	avg = avg*processingTimeSmoothing + ms*(1-processingTimeSmoothing)
	p.avgProcessingBits.Store(math.Float64bits(avg))
}

// TimingEngine turns audio blocks and optional host-transport state into
// per-block capture decisions.
//
// ProcessTimingBlock and ShouldCapture run on the audio goroutine, once per
// block in that order. Mode changes and configuration setters are safe from
// any goroutine: the mode is a single atomic word and configuration is
// copied under a mutex at the start of each decision, so a setter can never
// expose a half-applied configuration to the audio goroutine.
type TimingEngine struct {
	mode   atomic.Int32
	active atomic.Bool

	// force marks the next decision call as a capture event regardless of
	// mode. resetAnchors defers anchor resets to the audio goroutine so a
	// mode change off the audio thread never races the hot path.
	force        atomic.Bool
	resetAnchors atomic.Bool

	configMu        sync.Mutex
	triggerConfig   TriggerConfig
	musicalConfig   MusicalConfig
	timeBasedConfig TimeBasedConfig
	sampleRate      float64
	blockSize       int
	prepared        bool

	samplesProcessed atomic.Uint64
	captureEvents    atomic.Uint64
	missedTriggers   atomic.Uint64
	currentBPMBits   atomic.Uint64

	// Audio-goroutine-owned trigger and anchor state.
	lastTriggerSample   uint64
	hasTriggered        bool
	lastSampleValue     float32
	lastBeatSample      uint64
	lastTimeBasedAnchor uint64
	freeRunningInterval uint64
	history             [triggerHistorySize]float32
	historyIndex        int
	historyCount        int

	perf   perfCounters
	logger *slog.Logger
}

// NewTimingEngine creates an engine in free-running mode with default
// configuration.
func NewTimingEngine() *TimingEngine {
	logger := logging.ForService("timing")
	if logger == nil {
		logger = slog.Default()
	}

	e := &TimingEngine{
		triggerConfig:   DefaultTriggerConfig(),
		musicalConfig:   DefaultMusicalConfig(),
		timeBasedConfig: DefaultTimeBasedConfig(),
		sampleRate:      defaultSampleRate,
		logger:          logger,
	}
	e.setCurrentBPM(DefaultBPM)
	return e
}

func (e *TimingEngine) setCurrentBPM(bpm float64) {
	e.currentBPMBits.Store(math.Float64bits(bpm))
}

func (e *TimingEngine) currentBPM() float64 {
	return math.Float64frombits(e.currentBPMBits.Load())
}

// PrepareToPlay readies the engine for a stream at the given rate and block
// size, resetting all counters and trigger state. Structural; must complete
// before the first ProcessTimingBlock.
func (e *TimingEngine) PrepareToPlay(sampleRate float64, blockSize int) {
	if sampleRate <= 0 || blockSize <= 0 {
		return
	}

	e.configMu.Lock()
	e.sampleRate = sampleRate
	e.blockSize = blockSize
	e.prepared = true
	e.configMu.Unlock()

	e.samplesProcessed.Store(0)
	e.captureEvents.Store(0)
	e.missedTriggers.Store(0)
	e.lastTriggerSample = 0
	e.hasTriggered = false
	e.lastSampleValue = 0
	e.lastBeatSample = 0
	e.lastTimeBasedAnchor = 0
	e.historyIndex = 0
	e.historyCount = 0
	clear(e.history[:])

	e.freeRunningInterval = uint64(freeRunningIntervalBase * sampleRate / defaultSampleRate)
	e.perf.reset()
	e.force.Store(false)
	e.resetAnchors.Store(false)
	e.active.Store(true)

	e.logger.Info("timing engine prepared",
		"sample_rate", sampleRate,
		"block_size", blockSize,
		"mode", e.Mode().String())
}

// ReleaseResources deactivates the engine; subsequent decision calls return
// false until the next PrepareToPlay.
func (e *TimingEngine) ReleaseResources() {
	e.active.Store(false)

	e.configMu.Lock()
	e.prepared = false
	e.configMu.Unlock()
}

// SetMode switches the active timing mode. The switch is a single atomic
// write, takes effect at the next decision call, and rejects undefined
// modes.
func (e *TimingEngine) SetMode(mode TimingMode) bool {
	if !ValidTimingMode(mode) {
		return false
	}
	e.mode.Store(int32(mode))
	e.perf.modeChanges.Add(1)
	e.resetAnchors.Store(true)
	return true
}

// Mode returns the active timing mode.
func (e *TimingEngine) Mode() TimingMode {
	return TimingMode(e.mode.Load())
}

// SetTriggerConfig applies a trigger configuration after validation.
// Invalid configuration is rejected and the previous one stays active.
func (e *TimingEngine) SetTriggerConfig(cfg TriggerConfig) bool {
	if !cfg.Valid() {
		return false
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	e.triggerConfig = cfg
	return true
}

// TriggerConfig returns the active trigger configuration.
func (e *TimingEngine) TriggerConfig() TriggerConfig {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.triggerConfig
}

// SetMusicalConfig applies a musical configuration after validation.
func (e *TimingEngine) SetMusicalConfig(cfg MusicalConfig) bool {
	if !cfg.Valid() {
		return false
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	e.musicalConfig = cfg
	return true
}

// MusicalConfig returns the active musical configuration.
func (e *TimingEngine) MusicalConfig() MusicalConfig {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.musicalConfig
}

// SetTimeBasedConfig applies a time-based configuration after validation.
func (e *TimingEngine) SetTimeBasedConfig(cfg TimeBasedConfig) bool {
	if !cfg.Valid() {
		return false
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()
	e.timeBasedConfig = cfg
	return true
}

// TimeBasedConfig returns the active time-based configuration.
func (e *TimingEngine) TimeBasedConfig() TimeBasedConfig {
	e.configMu.Lock()
	defer e.configMu.Unlock()
	return e.timeBasedConfig
}

// ForceTrigger marks the next decision call as a capture event regardless
// of the active mode. Safe from any goroutine.
func (e *TimingEngine) ForceTrigger() {
	if e.active.Load() {
		e.force.Store(true)
	}
}

// ProcessTimingBlock advances the engine's sample clock and resynchronizes
// tempo from the host transport. Must be called once per audio block,
// before ShouldCapture for that block. Audio goroutine only.
func (e *TimingEngine) ProcessTimingBlock(t *Transport, numSamples int) {
	if !e.active.Load() || numSamples <= 0 {
		return
	}

	e.perf.processBlockCalls.Add(1)

	if e.resetAnchors.Swap(false) {
		sp := e.samplesProcessed.Load()
		e.lastTriggerSample = sp
		e.hasTriggered = true
		e.lastBeatSample = sp
		e.lastTimeBasedAnchor = sp
	}

	e.updateBPMFromTransport(t)
	e.samplesProcessed.Add(uint64(numSamples))
}

// ShouldCapture decides whether a capture event fires for the current
// block, dispatching on the active mode. A pending ForceTrigger wins over
// every mode. Missing transport or audio data degrades to not firing;
// nothing on this path can fail. Audio goroutine only.
func (e *TimingEngine) ShouldCapture(t *Transport, channels [][]float32, numSamples int) bool {
	if !e.active.Load() {
		return false
	}

	start := time.Now()

	var fired bool
	if e.force.Swap(false) {
		sp := e.samplesProcessed.Load()
		e.lastTriggerSample = sp
		e.hasTriggered = true
		fired = true
	} else {
		switch e.Mode() {
		case FreeRunning:
			fired = e.decideFreeRunning()
		case HostSync:
			fired = e.decideHostSync(t, numSamples)
		case TimeBased:
			fired = e.decideTimeBased()
		case Musical:
			fired = e.decideMusical(t)
		case Trigger:
			fired = e.decideTrigger(channels, numSamples)
		}
	}

	e.perf.recordDecisionTime(float64(time.Since(start)) / float64(time.Millisecond))
	e.perf.timingCalculations.Add(1)

	if fired {
		e.captureEvents.Add(1)
	}
	return fired
}

// State returns a snapshot of the engine state.
func (e *TimingEngine) State() TimingState {
	e.configMu.Lock()
	sampleRate := e.sampleRate
	e.configMu.Unlock()

	return TimingState{
		Mode:             e.Mode(),
		Active:           e.active.Load(),
		SamplesProcessed: e.samplesProcessed.Load(),
		CaptureEvents:    e.captureEvents.Load(),
		MissedTriggers:   e.missedTriggers.Load(),
		CurrentBPM:       e.currentBPM(),
		SampleRate:       sampleRate,
	}
}

// PerformanceStats returns a snapshot of the internal counters.
func (e *TimingEngine) PerformanceStats() PerformanceStats {
	return PerformanceStats{
		ProcessBlockCalls:       e.perf.processBlockCalls.Load(),
		TimingCalculations:      e.perf.timingCalculations.Load(),
		TriggerDetections:       e.perf.triggerDetections.Load(),
		ModeChanges:             e.perf.modeChanges.Load(),
		AverageProcessingTimeMs: math.Float64frombits(e.perf.avgProcessingBits.Load()),
		MaxProcessingTimeMs:     math.Float64frombits(e.perf.maxProcessingBits.Load()),
	}
}

// ResetStatistics zeroes the capture and performance counters without
// touching timing state.
func (e *TimingEngine) ResetStatistics() {
	e.captureEvents.Store(0)
	e.missedTriggers.Store(0)
	e.perf.reset()
}

func (e *TimingEngine) updateBPMFromTransport(t *Transport) {
	if t == nil || !t.HasBPM {
		return
	}
	if t.BPM >= MinBPM && t.BPM <= MaxBPM {
		e.setCurrentBPM(t.BPM)
	}
}

// decideFreeRunning fires once every fixed sample interval derived from the
// sample rate.
func (e *TimingEngine) decideFreeRunning() bool {
	sp := e.samplesProcessed.Load()
	if sp-e.lastTriggerSample >= e.freeRunningInterval || !e.hasTriggered {
		e.lastTriggerSample = sp
		e.hasTriggered = true
		return true
	}
	return false
}

// decideHostSync fires when the transport crosses a quarter-note boundary
// while playing. Without a transport it degrades to free-running; without
// position info it never fires.
func (e *TimingEngine) decideHostSync(t *Transport, numSamples int) bool {
	if t == nil {
		return e.decideFreeRunning()
	}
	if !t.Playing || !t.HasPPQ {
		return false
	}

	e.configMu.Lock()
	sampleRate := e.sampleRate
	e.configMu.Unlock()

	samplesPerBeat := bpmToSamplesPerBeat(e.currentBPM(), sampleRate)
	currentPpq := t.PPQPosition
	lastPpq := currentPpq - float64(numSamples)/samplesPerBeat

	return math.Floor(currentPpq) > math.Floor(lastPpq)
}

// decideTimeBased fires every configured millisecond interval measured in
// samples. With drift compensation the anchor advances by exact intervals,
// so long-run capture cadence never drifts from capture latency.
func (e *TimingEngine) decideTimeBased() bool {
	e.configMu.Lock()
	cfg := e.timeBasedConfig
	sampleRate := e.sampleRate
	e.configMu.Unlock()

	rate := sampleRate
	if !cfg.AdaptToSampleRate {
		rate = defaultSampleRate
	}
	interval := uint64(timeToSamples(cfg.IntervalMs, rate))
	if interval == 0 {
		return false
	}

	sp := e.samplesProcessed.Load()
	if sp-e.lastTimeBasedAnchor < interval {
		return false
	}

	if cfg.DriftCompensation {
		e.lastTimeBasedAnchor += (sp - e.lastTimeBasedAnchor) / interval * interval
	} else {
		e.lastTimeBasedAnchor = sp
	}
	return true
}

// decideMusical fires at beat-division boundaries computed from the host
// tempo, or the custom BPM when not following tempo changes.
func (e *TimingEngine) decideMusical(t *Transport) bool {
	e.configMu.Lock()
	cfg := e.musicalConfig
	sampleRate := e.sampleRate
	e.configMu.Unlock()

	if cfg.FollowTempoChanges && t != nil {
		e.updateBPMFromTransport(t)
	} else if !cfg.FollowTempoChanges {
		e.setCurrentBPM(cfg.CustomBPM)
	}

	samplesPerDivision := bpmToSamplesPerBeat(e.currentBPM(), sampleRate) / float64(cfg.BeatDivision)
	step := uint64(samplesPerDivision)
	if step == 0 {
		return false
	}

	sp := e.samplesProcessed.Load()
	if sp-e.lastBeatSample < step {
		return false
	}

	if cfg.SnapToBeats {
		// Advance along the beat grid rather than to the capture time.
		e.lastBeatSample += (sp - e.lastBeatSample) / step * step
	} else {
		e.lastBeatSample = sp
	}
	return true
}
