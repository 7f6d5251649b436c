// Package timing decides, per audio block, whether a capture event should
// fire. It implements five synchronization modes (free-running, host sync,
// time-based, musical, trigger) and three signal trigger detectors (level,
// edge, slope) with sample-accurate bookkeeping.
package timing

// TimingMode selects the active capture synchronization strategy.
type TimingMode int32

const (
	// FreeRunning captures continuously at a fixed sample interval derived
	// from the sample rate, regardless of signal or host state.
	FreeRunning TimingMode = iota
	// HostSync captures when the host transport crosses a quarter-note
	// boundary while playing.
	HostSync
	// TimeBased captures at a configured millisecond interval measured in
	// samples.
	TimeBased
	// Musical captures at beat boundaries derived from BPM and beat
	// division.
	Musical
	// Trigger captures when the signal satisfies the configured detector.
	Trigger
)

// ValidTimingMode reports whether mode is one of the defined modes.
func ValidTimingMode(mode TimingMode) bool {
	return mode >= FreeRunning && mode <= Trigger
}

// String returns the mode name used in configuration and logs.
func (m TimingMode) String() string {
	switch m {
	case FreeRunning:
		return "free_running"
	case HostSync:
		return "host_sync"
	case TimeBased:
		return "time_based"
	case Musical:
		return "musical"
	case Trigger:
		return "trigger"
	default:
		return "unknown"
	}
}

// ParseTimingMode maps a configuration string to a mode.
func ParseTimingMode(s string) (TimingMode, bool) {
	switch s {
	case "free_running":
		return FreeRunning, true
	case "host_sync":
		return HostSync, true
	case "time_based":
		return TimeBased, true
	case "musical":
		return Musical, true
	case "trigger":
		return Trigger, true
	default:
		return FreeRunning, false
	}
}

// TriggerType selects the signal detection algorithm.
type TriggerType int32

const (
	// Level compares the signal against a threshold with hysteresis.
	Level TriggerType = iota
	// Edge compares the sample-to-sample derivative against a threshold.
	Edge
	// Slope fits a least-squares line over a window of recent samples and
	// compares its slope against a threshold.
	Slope
)

// String returns the detector name used in configuration and logs.
func (t TriggerType) String() string {
	switch t {
	case Level:
		return "level"
	case Edge:
		return "edge"
	case Slope:
		return "slope"
	default:
		return "unknown"
	}
}

// ParseTriggerType maps a configuration string to a detector.
func ParseTriggerType(s string) (TriggerType, bool) {
	switch s {
	case "level":
		return Level, true
	case "edge":
		return Edge, true
	case "slope":
		return Slope, true
	default:
		return Level, false
	}
}

// TriggerEdge selects the signal direction a detector responds to.
type TriggerEdge int32

const (
	// Rising fires on upward crossings.
	Rising TriggerEdge = iota
	// Falling fires on downward crossings.
	Falling
	// Both fires on crossings in either direction.
	Both
)

// String returns the edge name used in configuration and logs.
func (e TriggerEdge) String() string {
	switch e {
	case Rising:
		return "rising"
	case Falling:
		return "falling"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// ParseTriggerEdge maps a configuration string to an edge direction.
func ParseTriggerEdge(s string) (TriggerEdge, bool) {
	switch s {
	case "rising":
		return Rising, true
	case "falling":
		return Falling, true
	case "both":
		return Both, true
	default:
		return Rising, false
	}
}

// Default timing parameters.
const (
	DefaultBPM = 120.0
	MinBPM     = 60.0
	MaxBPM     = 300.0

	DefaultIntervalMs       = 100.0
	DefaultTriggerThreshold = 0.5
	DefaultHysteresis       = 0.1
	DefaultHoldOffSamples   = 512
	DefaultSlopeWindow      = 8

	// triggerHistorySize is the number of recent samples retained for
	// slope analysis.
	triggerHistorySize = 256
)

// TriggerConfig configures signal-based trigger detection.
type TriggerConfig struct {
	Type               TriggerType
	Edge               TriggerEdge
	Threshold          float32 // trigger level in [-1, 1]
	Hysteresis         float32 // dead band below the threshold, in [0, 1]
	HoldOffSamples     int     // minimum sample gap between fires
	SlopeWindowSamples int     // regression window for the slope detector
	Enabled            bool
}

// DefaultTriggerConfig returns the configuration applied to a fresh engine.
func DefaultTriggerConfig() TriggerConfig {
	return TriggerConfig{
		Type:               Level,
		Edge:               Rising,
		Threshold:          DefaultTriggerThreshold,
		Hysteresis:         DefaultHysteresis,
		HoldOffSamples:     DefaultHoldOffSamples,
		SlopeWindowSamples: DefaultSlopeWindow,
		Enabled:            true,
	}
}

// Valid reports whether every field is inside its documented range.
func (c TriggerConfig) Valid() bool {
	return c.Threshold >= -1 && c.Threshold <= 1 &&
		c.Hysteresis >= 0 && c.Hysteresis <= 1 &&
		c.HoldOffSamples > 0 && c.HoldOffSamples <= 48000 &&
		c.SlopeWindowSamples > 0 && c.SlopeWindowSamples <= triggerHistorySize
}

// MusicalConfig configures beat-synchronized capture.
type MusicalConfig struct {
	BeatDivision       int  // 1 = whole note, 4 = quarter note, 8 = eighth note
	BarLength          int  // beats per bar
	SnapToBeats        bool // snap capture to exact beat positions
	FollowTempoChanges bool // adopt host tempo changes when a transport is present
	CustomBPM          float64
}

// DefaultMusicalConfig returns quarter-note timing in 4/4 at 120 BPM.
func DefaultMusicalConfig() MusicalConfig {
	return MusicalConfig{
		BeatDivision:       4,
		BarLength:          4,
		SnapToBeats:        true,
		FollowTempoChanges: true,
		CustomBPM:          DefaultBPM,
	}
}

// Valid reports whether every field is inside its documented range.
func (c MusicalConfig) Valid() bool {
	return c.BeatDivision > 0 && c.BeatDivision <= 64 &&
		c.BarLength > 0 && c.BarLength <= 32 &&
		c.CustomBPM >= MinBPM && c.CustomBPM <= MaxBPM
}

// TimeBasedConfig configures wall-clock interval capture.
type TimeBasedConfig struct {
	IntervalMs        float64 // capture interval in milliseconds, [1, 10000]
	DriftCompensation bool    // anchor advances by exact intervals, not capture times
	AdaptToSampleRate bool    // recompute the interval when the rate changes
}

// DefaultTimeBasedConfig returns a 100 ms interval with drift compensation.
func DefaultTimeBasedConfig() TimeBasedConfig {
	return TimeBasedConfig{
		IntervalMs:        DefaultIntervalMs,
		DriftCompensation: true,
		AdaptToSampleRate: true,
	}
}

// Valid reports whether the interval is inside its documented range.
func (c TimeBasedConfig) Valid() bool {
	return c.IntervalMs >= 1 && c.IntervalMs <= 10000
}
