package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEngineInactiveUntilPrepared(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	assert.False(t, e.ShouldCapture(nil, nil, 512))

	e.ForceTrigger()
	assert.False(t, e.ShouldCapture(nil, nil, 512), "force trigger is a no-op while inactive")

	e.PrepareToPlay(0, 512)
	assert.False(t, e.State().Active, "invalid sample rate must not activate the engine")

	e.PrepareToPlay(44100, 512)
	assert.True(t, e.State().Active)

	e.ReleaseResources()
	assert.False(t, e.ShouldCapture(nil, nil, 512))
}

func TestFreeRunningFixedInterval(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	e.PrepareToPlay(44100, 512)

	// Interval is 1024 samples at 44.1 kHz: the first block fires, then
	// every second 512 sample block after it.
	var fires []int
	for block := range 8 {
		e.ProcessTimingBlock(nil, 512)
		if e.ShouldCapture(nil, nil, 512) {
			fires = append(fires, block)
		}
	}
	assert.Equal(t, []int{0, 2, 4, 6}, fires)
}

func TestFreeRunningIntervalScalesWithRate(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	e.PrepareToPlay(88200, 512)

	var fires []int
	for block := range 8 {
		e.ProcessTimingBlock(nil, 512)
		if e.ShouldCapture(nil, nil, 512) {
			fires = append(fires, block)
		}
	}
	// 2048 samples per interval at 88.2 kHz: every fourth block.
	assert.Equal(t, []int{0, 4}, fires)
}

func TestTimeBasedInterval(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	require.True(t, e.SetMode(TimeBased))
	require.True(t, e.SetTimeBasedConfig(TimeBasedConfig{
		IntervalMs:        100, // 4410 samples at 44.1 kHz
		DriftCompensation: true,
		AdaptToSampleRate: true,
	}))
	e.PrepareToPlay(44100, 512)

	var fires []int
	for block := range 20 {
		e.ProcessTimingBlock(nil, 512)
		if e.ShouldCapture(nil, nil, 512) {
			fires = append(fires, block)
		}
	}
	// First fire once 4410 samples elapsed (block 8, 4608 samples); drift
	// compensation keeps the anchor on the 4410 grid, so the second fire
	// lands at 8820 samples (block 17, 9216 samples).
	assert.Equal(t, []int{8, 17}, fires)
}

func TestTimeBasedConfigRejection(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	prior := e.TimeBasedConfig()

	assert.False(t, e.SetTimeBasedConfig(TimeBasedConfig{IntervalMs: 0.5}))
	assert.False(t, e.SetTimeBasedConfig(TimeBasedConfig{IntervalMs: 20000}))
	assert.Equal(t, prior, e.TimeBasedConfig())
}

func TestMusicalCustomBPM(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	require.True(t, e.SetMode(Musical))
	require.True(t, e.SetMusicalConfig(MusicalConfig{
		BeatDivision:       4,
		BarLength:          4,
		SnapToBeats:        true,
		FollowTempoChanges: false,
		CustomBPM:          120,
	}))
	e.PrepareToPlay(44100, 512)

	// 120 BPM at 44.1 kHz divided by 4 is 5512 samples per division.
	var fires []int
	for block := range 24 {
		e.ProcessTimingBlock(nil, 512)
		if e.ShouldCapture(nil, nil, 512) {
			fires = append(fires, block)
		}
	}
	assert.Equal(t, []int{10, 21}, fires)
	assert.InDelta(t, 120.0, e.State().CurrentBPM, 1e-9)
}

func TestMusicalFollowsTransportTempo(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	require.True(t, e.SetMode(Musical))
	cfg := DefaultMusicalConfig()
	cfg.BeatDivision = 1
	require.True(t, e.SetMusicalConfig(cfg))
	e.PrepareToPlay(44100, 512)

	transport := &Transport{Playing: true, BPM: 300, HasBPM: true}

	// At 300 BPM a whole beat is 8820 samples.
	var fires []int
	for block := range 20 {
		e.ProcessTimingBlock(transport, 512)
		if e.ShouldCapture(transport, nil, 512) {
			fires = append(fires, block)
		}
	}
	assert.Equal(t, []int{17}, fires)
	assert.InDelta(t, 300.0, e.State().CurrentBPM, 1e-9)
}

func TestMusicalIgnoresOutOfRangeTempo(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	e.PrepareToPlay(44100, 512)

	e.ProcessTimingBlock(&Transport{BPM: 500, HasBPM: true}, 512)
	assert.InDelta(t, DefaultBPM, e.State().CurrentBPM, 1e-9, "out-of-range host tempo is ignored")

	e.ProcessTimingBlock(&Transport{BPM: 90, HasBPM: true}, 512)
	assert.InDelta(t, 90.0, e.State().CurrentBPM, 1e-9)
}

func TestMusicalConfigRejection(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	prior := e.MusicalConfig()

	bad := prior
	bad.CustomBPM = 30
	assert.False(t, e.SetMusicalConfig(bad))

	bad = prior
	bad.BeatDivision = 0
	assert.False(t, e.SetMusicalConfig(bad))

	assert.Equal(t, prior, e.MusicalConfig())
}

func TestHostSyncQuarterNoteCrossing(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	require.True(t, e.SetMode(HostSync))
	e.PrepareToPlay(44100, 512)

	// At the default 120 BPM, 512 samples span about 0.023 quarter notes.
	crossing := &Transport{Playing: true, PPQPosition: 1.01, HasPPQ: true}
	between := &Transport{Playing: true, PPQPosition: 1.5, HasPPQ: true}
	stopped := &Transport{Playing: false, PPQPosition: 1.01, HasPPQ: true}
	noPPQ := &Transport{Playing: true}

	e.ProcessTimingBlock(crossing, 512)
	assert.True(t, e.ShouldCapture(crossing, nil, 512), "block spanning a beat boundary fires")

	e.ProcessTimingBlock(between, 512)
	assert.False(t, e.ShouldCapture(between, nil, 512), "mid-beat block does not fire")

	e.ProcessTimingBlock(stopped, 512)
	assert.False(t, e.ShouldCapture(stopped, nil, 512), "stopped transport never fires")

	e.ProcessTimingBlock(noPPQ, 512)
	assert.False(t, e.ShouldCapture(noPPQ, nil, 512), "missing position info never fires")
}

func TestHostSyncWithoutTransportFallsBack(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	require.True(t, e.SetMode(HostSync))
	e.PrepareToPlay(44100, 512)

	e.ProcessTimingBlock(nil, 512)
	assert.True(t, e.ShouldCapture(nil, nil, 512), "no transport degrades to free-running")
}

func TestModeSwitchIsDeterministic(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	e.PrepareToPlay(44100, 512)

	e.ProcessTimingBlock(nil, 512)
	assert.True(t, e.ShouldCapture(nil, nil, 512), "free-running fires immediately")

	// The very next decision after the switch must use trigger logic:
	// silence can never satisfy a level detector.
	require.True(t, e.SetMode(Trigger))
	silence := make([]float32, 512)
	e.ProcessTimingBlock(nil, 512)
	assert.False(t, e.ShouldCapture(nil, [][]float32{silence}, 512))

	assert.False(t, e.SetMode(TimingMode(99)), "undefined mode is rejected")
	assert.Equal(t, Trigger, e.Mode())
}

func TestForceTriggerFiresOnceInAnyMode(t *testing.T) {
	t.Parallel()

	for _, mode := range []TimingMode{FreeRunning, HostSync, TimeBased, Musical, Trigger} {
		e := NewTimingEngine()
		require.True(t, e.SetMode(mode))
		e.PrepareToPlay(44100, 512)

		// Exhaust any immediate fire the mode produces on its first block.
		silence := make([]float32, 512)
		e.ProcessTimingBlock(nil, 512)
		e.ShouldCapture(nil, [][]float32{silence}, 512)

		e.ForceTrigger()
		e.ProcessTimingBlock(nil, 512)
		assert.True(t, e.ShouldCapture(nil, [][]float32{silence}, 512),
			"forced trigger fires in mode %s", mode)

		e.ProcessTimingBlock(nil, 512)
		if mode == Trigger || mode == TimeBased || mode == Musical {
			assert.False(t, e.ShouldCapture(nil, [][]float32{silence}, 512),
				"force flag is consumed in mode %s", mode)
		}
	}
}

func TestStatisticsAccumulateAndReset(t *testing.T) {
	t.Parallel()

	e := NewTimingEngine()
	e.PrepareToPlay(44100, 512)

	for range 4 {
		e.ProcessTimingBlock(nil, 512)
		e.ShouldCapture(nil, nil, 512)
	}

	state := e.State()
	assert.Equal(t, uint64(2048), state.SamplesProcessed)
	assert.Equal(t, uint64(2), state.CaptureEvents)

	stats := e.PerformanceStats()
	assert.Equal(t, uint64(4), stats.ProcessBlockCalls)
	assert.Equal(t, uint64(4), stats.TimingCalculations)

	e.ResetStatistics()
	assert.Equal(t, uint64(0), e.State().CaptureEvents)
	assert.Equal(t, uint64(0), e.PerformanceStats().ProcessBlockCalls)
	assert.Equal(t, uint64(2048), e.State().SamplesProcessed, "sample clock survives a statistics reset")
}

func TestParseRoundTrips(t *testing.T) {
	t.Parallel()

	for _, mode := range []TimingMode{FreeRunning, HostSync, TimeBased, Musical, Trigger} {
		parsed, ok := ParseTimingMode(mode.String())
		require.True(t, ok)
		assert.Equal(t, mode, parsed)
	}
	_, ok := ParseTimingMode("bogus")
	assert.False(t, ok)

	for _, typ := range []TriggerType{Level, Edge, Slope} {
		parsed, ok := ParseTriggerType(typ.String())
		require.True(t, ok)
		assert.Equal(t, typ, parsed)
	}

	for _, edge := range []TriggerEdge{Rising, Falling, Both} {
		parsed, ok := ParseTriggerEdge(edge.String())
		require.True(t, ok)
		assert.Equal(t, edge, parsed)
	}
}
