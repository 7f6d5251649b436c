package audio

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newPreparedEngine(t *testing.T) *MultiTrackEngine {
	t.Helper()
	e := NewMultiTrackEngine(0)
	e.PrepareToPlay(44100, 512, 2)
	return e
}

func TestAddTrackAssignsUniqueIDs(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)

	seen := make(map[TrackID]bool)
	for i := range MaxTracks {
		id := e.AddTrack(fmt.Sprintf("track-%d", i), i%2)
		require.True(t, id.IsValid(), "track %d should be created", i)
		require.False(t, seen[id], "track ids must be unique")
		seen[id] = true
	}
	assert.Equal(t, MaxTracks, e.NumTracks())
}

func TestAddTrackLimit(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)

	for i := range MaxTracks {
		require.True(t, e.AddTrack(fmt.Sprintf("track-%d", i), 0).IsValid())
	}

	id := e.AddTrack("one-too-many", 0)
	assert.False(t, id.IsValid(), "track beyond the limit must yield the invalid id")
	assert.Equal(t, MaxTracks, e.NumTracks())

	// Removing one track frees a slot for a new one.
	ids := e.TrackIDs()
	require.True(t, e.RemoveTrack(ids[0]))
	assert.True(t, e.AddTrack("replacement", 0).IsValid())
}

func TestColorAssignmentRoundRobin(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)

	for i := range NumTrackColors + 2 {
		id := e.AddTrack(fmt.Sprintf("track-%d", i), 0)
		info, ok := e.TrackInfo(id)
		require.True(t, ok)
		assert.Equal(t, i%NumTrackColors, info.ColorIndex)
	}
}

func TestRemoveTrackUnknownID(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	assert.False(t, e.RemoveTrack(NewTrackID()))
	assert.False(t, e.RemoveTrack(TrackID("")))
}

func TestUpdateTrackInfoPreservesIdentity(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	id := e.AddTrack("original", 0)
	require.True(t, id.IsValid())

	block := [][]float32{make([]float32, 256), make([]float32, 256)}
	e.ProcessAudioBlock(block, 256)

	update := TrackInfo{
		ID:               NewTrackID(), // caller-supplied id must be ignored
		Name:             "renamed",
		ChannelIndex:     1,
		Active:           false,
		Visible:          false,
		ColorIndex:       3,
		SamplesProcessed: 999999, // counter must be preserved, not overwritten
	}
	require.True(t, e.UpdateTrackInfo(id, update))

	info, ok := e.TrackInfo(id)
	require.True(t, ok)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "renamed", info.Name)
	assert.Equal(t, 1, info.ChannelIndex)
	assert.False(t, info.Active)
	assert.Equal(t, 3, info.ColorIndex)
	assert.Equal(t, uint64(256), info.SamplesProcessed)

	assert.False(t, e.UpdateTrackInfo(NewTrackID(), update))
}

func TestProcessAudioBlockFillsTrackRing(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	id := e.AddTrack("input", 0)
	require.True(t, id.IsValid())

	block := make([]float32, 512)
	for i := range block {
		block[i] = float32(i) / 512
	}
	e.ProcessAudioBlock([][]float32{block, block}, len(block))

	ring := e.TrackRing(id)
	require.NotNil(t, ring)

	out := make([]float32, 512)
	ring.PeekLatest(out)
	assert.Equal(t, block, out)

	info, _ := e.TrackInfo(id)
	assert.Equal(t, uint64(512), info.SamplesProcessed)

	stats := e.Stats()
	assert.Equal(t, uint64(1), stats.BlocksProcessed)
	assert.Equal(t, uint64(512), stats.SamplesProcessed)
}

func TestProcessAudioBlockPublishesSnapshots(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	require.True(t, e.AddTrack("input", 0).IsValid())

	left := make([]float32, 256)
	right := make([]float32, 256)
	for i := range left {
		left[i] = 0.5
		right[i] = -0.5
	}
	e.ProcessAudioBlock([][]float32{left, right}, 256)

	snap := new(AudioSnapshot)
	require.True(t, e.WaveformBridge().Pull(snap))
	assert.Equal(t, 2, snap.NumChannels)
	assert.Equal(t, 256, snap.NumSamples)
	assert.InDelta(t, 0.5, snap.Samples[0][100], 1e-6)
	assert.InDelta(t, -0.5, snap.Samples[1][100], 1e-6)

	meas := new(MeasurementSnapshot)
	require.True(t, e.MeasurementBridge().Pull(meas))
	require.True(t, meas.LevelsValid)
	assert.Equal(t, 2, meas.NumChannels)
	assert.InDelta(t, 0.5, meas.PeakLevels[0], 1e-6)
	assert.InDelta(t, 0.5, meas.RMSLevels[0], 1e-6)
	assert.InDelta(t, 0.5, meas.PeakLevels[1], 1e-6)
}

func TestProcessAudioBlockBeforePrepareIsNoOp(t *testing.T) {
	t.Parallel()

	e := NewMultiTrackEngine(0)
	e.AddTrack("input", 0)

	block := make([]float32, 128)
	e.ProcessAudioBlock([][]float32{block}, len(block))

	assert.Equal(t, uint64(0), e.Stats().BlocksProcessed)
	snap := new(AudioSnapshot)
	assert.False(t, e.WaveformBridge().Pull(snap))
}

func TestProcessAudioBlockAfterReleaseIsNoOp(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	e.AddTrack("input", 0)
	e.ReleaseResources()

	block := make([]float32, 128)
	e.ProcessAudioBlock([][]float32{block}, len(block))
	assert.Equal(t, uint64(0), e.Stats().BlocksProcessed)
}

func TestInactiveTrackSkipsCapture(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	id := e.AddTrack("muted", 0)
	require.True(t, id.IsValid())

	info, _ := e.TrackInfo(id)
	info.Active = false
	require.True(t, e.UpdateTrackInfo(id, info))

	block := make([]float32, 64)
	for i := range block {
		block[i] = 1
	}
	e.ProcessAudioBlock([][]float32{block}, len(block))

	info, _ = e.TrackInfo(id)
	assert.Equal(t, uint64(0), info.SamplesProcessed, "inactive track must not consume samples")
	// The aggregated bridges still run even with no active tracks capturing.
	assert.Equal(t, uint64(1), e.Stats().BlocksProcessed)
}

func TestTrackChannelBeyondInputIsSkipped(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	id := e.AddTrack("channel-7", 7)
	require.True(t, id.IsValid())

	block := make([]float32, 64)
	e.ProcessAudioBlock([][]float32{block, block}, len(block))

	info, _ := e.TrackInfo(id)
	assert.Equal(t, uint64(0), info.SamplesProcessed)
}

func TestPrepareToPlayResizesRings(t *testing.T) {
	t.Parallel()

	e := NewMultiTrackEngine(8192)
	e.PrepareToPlay(44100, 512, 2)
	id := e.AddTrack("input", 0)
	require.True(t, id.IsValid())
	assert.Equal(t, 8192, e.TrackRing(id).Capacity())

	// Doubling the sample rate doubles the capture window in samples.
	e.PrepareToPlay(88200, 512, 2)
	assert.Equal(t, 16384, e.TrackRing(id).Capacity())
}

func TestSetTrackProcessing(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	id := e.AddTrack("input", 0)
	require.True(t, id.IsValid())

	cfg, ok := e.TrackProcessing(id)
	require.True(t, ok)
	assert.Equal(t, FullStereo, cfg.Mode)

	cfg.Mode = MidSide
	require.True(t, e.SetTrackProcessing(id, cfg))

	cfg, ok = e.TrackProcessing(id)
	require.True(t, ok)
	assert.Equal(t, MidSide, cfg.Mode)

	e.SetGlobalProcessingMode(MonoSum)
	cfg, _ = e.TrackProcessing(id)
	assert.Equal(t, MonoSum, cfg.Mode)

	_, ok = e.TrackProcessing(NewTrackID())
	assert.False(t, ok)
}

func TestPrepareToPlayResetsSessionCounters(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	e.AddTrack("input", 0)

	block := make([]float32, 128)
	e.ProcessAudioBlock([][]float32{block, block}, len(block))
	require.Equal(t, uint64(1), e.Stats().BlocksProcessed)
	require.Equal(t, uint64(128), e.Stats().SamplesProcessed)

	e.PrepareToPlay(48000, 512, 2)

	stats := e.Stats()
	assert.Equal(t, uint64(0), stats.BlocksProcessed)
	assert.Equal(t, uint64(0), stats.SamplesProcessed)
	// Lifetime track counters survive re-preparation.
	assert.Equal(t, uint64(1), stats.TracksAdded)
}

func TestProcessAudioBlockConcurrentWithTrackMutation(t *testing.T) {
	t.Parallel()

	e := newPreparedEngine(t)
	id := e.AddTrack("input", 0)
	require.True(t, id.IsValid())

	block := make([]float32, 64)
	channels := [][]float32{block, block}

	var wg sync.WaitGroup
	done := make(chan struct{})

	// Audio goroutine: hammer the hot path.
	wg.Go(func() {
		for {
			select {
			case <-done:
				return
			default:
				e.ProcessAudioBlock(channels, len(block))
			}
		}
	})

	// Structural goroutine: flip the channel index between a valid slot
	// and one past the end of the block, so a stale index read after the
	// lock release would index out of bounds.
	wg.Go(func() {
		info, _ := e.TrackInfo(id)
		for i := range 2000 {
			info.ChannelIndex = i % 3
			e.UpdateTrackInfo(id, info)
		}
	})

	wg.Go(func() {
		for range 500 {
			e.PrepareToPlay(44100, 512, 2)
		}
	})

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}
