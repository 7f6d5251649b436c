package audio

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/tphakala/oscil-go/internal/dsp"
	"github.com/tphakala/oscil-go/internal/logging"
)

const (
	// MaxTracks is the maximum number of simultaneously live tracks.
	MaxTracks = 64

	// DefaultTrackBufferSize is the per-track ring capacity in samples at
	// the default sample rate; actual capacity scales with the prepared
	// rate.
	DefaultTrackBufferSize = 8192
)

// EngineStats counts engine activity. All fields are updated atomically.
type EngineStats struct {
	BlocksProcessed  uint64
	SamplesProcessed uint64
	TracksAdded      uint64
	TracksRemoved    uint64
}

// MultiTrackEngine owns per-track capture state for up to MaxTracks tracks.
//
// Structural operations (PrepareToPlay, AddTrack, RemoveTrack,
// UpdateTrackInfo) take an exclusive lock and must stay off the real-time
// goroutine. ProcessAudioBlock holds that lock only long enough to copy the
// active-track entries into a reusable scratch slice, then feeds ring
// buffers and bridges lock-free, so a concurrent structural mutation can
// stall the audio goroutine by at most that pointer copy.
type MultiTrackEngine struct {
	mu     sync.Mutex
	tracks map[TrackID]*trackState

	baseBufferSize int
	sampleRate     float64
	blockSize      int
	inputChannels  int
	prepared       bool

	waveformBridge    *WaveformBridge
	measurementBridge *MeasurementBridge

	// Audio-goroutine scratch state; never touched by structural calls.
	scratch     []activeTrack
	peakScratch [MaxChannels]float32
	rmsScratch  [MaxChannels]float32
	measurement MeasurementSnapshot

	// measurementProc derives stereo-image metrics from input channels 0/1.
	measurementProc *SignalProcessor

	blocksProcessed  atomic.Uint64
	samplesProcessed atomic.Uint64
	tracksAdded      atomic.Uint64
	tracksRemoved    atomic.Uint64

	logger *slog.Logger
}

// NewMultiTrackEngine creates an engine with the given base per-track buffer
// size (samples at 44.1 kHz); zero or negative selects the default.
func NewMultiTrackEngine(baseBufferSize int) *MultiTrackEngine {
	if baseBufferSize <= 0 {
		baseBufferSize = DefaultTrackBufferSize
	}

	logger := logging.ForService("engine")
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiTrackEngine{
		tracks:            make(map[TrackID]*trackState),
		baseBufferSize:    baseBufferSize,
		sampleRate:        DefaultSampleRate,
		waveformBridge:    NewWaveformBridge(),
		measurementBridge: NewMeasurementBridge(),
		scratch:           make([]activeTrack, 0, MaxTracks),
		measurementProc:   NewSignalProcessor(DefaultProcessorConfig()),
		logger:            logger,
	}
}

// trackBufferCapacity scales the base buffer size to the current rate.
func (e *MultiTrackEngine) trackBufferCapacity() int {
	return int(float64(e.baseBufferSize) * (e.sampleRate / DefaultSampleRate))
}

// PrepareToPlay readies the engine for audio processing, resizing every
// existing track's ring buffer for the new sample rate. Must complete before
// ProcessAudioBlock is called. Structural.
func (e *MultiTrackEngine) PrepareToPlay(sampleRate float64, blockSize, inputChannels int) {
	if sampleRate <= 0 || blockSize <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.sampleRate = sampleRate
	e.blockSize = blockSize
	e.inputChannels = inputChannels
	e.prepared = true

	capacity := e.trackBufferCapacity()
	for _, ts := range e.tracks {
		ts.ring = dsp.NewRingBuffer[float32](capacity)
	}

	// Block and sample counters describe one prepared session; track
	// add/remove counters are lifetime totals and survive.
	e.blocksProcessed.Store(0)
	e.samplesProcessed.Store(0)

	e.logger.Info("engine prepared",
		"sample_rate", sampleRate,
		"block_size", blockSize,
		"input_channels", inputChannels,
		"track_buffer_capacity", capacity)
}

// ReleaseResources stops the engine accepting audio. Structural.
func (e *MultiTrackEngine) ReleaseResources() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prepared = false
}

// AddTrack creates a new track capturing from the given input channel and
// returns its id. Returns the invalid TrackID when MaxTracks tracks are
// already live; that sentinel is the only failure signal. Structural.
func (e *MultiTrackEngine) AddTrack(name string, channelIndex int) TrackID {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.tracks) >= MaxTracks {
		e.logger.Warn("track limit reached",
			"max_tracks", MaxTracks,
			"track_name", name)
		return TrackID("")
	}

	info := TrackInfo{
		ID:           NewTrackID(),
		Name:         name,
		ChannelIndex: channelIndex,
		Active:       true,
		Visible:      true,
		ColorIndex:   len(e.tracks) % NumTrackColors,
	}

	e.tracks[info.ID] = newTrackState(info, e.trackBufferCapacity())
	e.tracksAdded.Add(1)

	e.logger.Info("track added",
		"track_id", string(info.ID),
		"track_name", name,
		"channel", channelIndex,
		"total_tracks", len(e.tracks))

	return info.ID
}

// RemoveTrack erases a track. Returns false when the id is not live.
// Structural.
func (e *MultiTrackEngine) RemoveTrack(id TrackID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.tracks[id]; !ok {
		return false
	}
	delete(e.tracks, id)
	e.tracksRemoved.Add(1)

	e.logger.Info("track removed",
		"track_id", string(id),
		"total_tracks", len(e.tracks))
	return true
}

// UpdateTrackInfo replaces a track's mutable fields, preserving the id and
// the cumulative sample counter. Returns false when the id is not live.
// Structural.
func (e *MultiTrackEngine) UpdateTrackInfo(id TrackID, info TrackInfo) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts, ok := e.tracks[id]
	if !ok {
		return false
	}

	info.ID = id
	info.SamplesProcessed = ts.samplesProcessed.Load()
	ts.info = info
	return true
}

// TrackInfo returns a snapshot of a track's info.
func (e *MultiTrackEngine) TrackInfo(id TrackID) (TrackInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts, ok := e.tracks[id]
	if !ok {
		return TrackInfo{}, false
	}
	return ts.snapshotInfo(), true
}

// TrackIDs returns the ids of all live tracks.
func (e *MultiTrackEngine) TrackIDs() []TrackID {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]TrackID, 0, len(e.tracks))
	for id := range e.tracks {
		ids = append(ids, id)
	}
	return ids
}

// NumTracks returns the number of live tracks.
func (e *MultiTrackEngine) NumTracks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tracks)
}

// TrackRing returns a track's ring buffer for additional single-consumer
// peeks, or nil when the id is not live. Callers are responsible for
// serializing their reads.
func (e *MultiTrackEngine) TrackRing(id TrackID) *dsp.RingBuffer[float32] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ts, ok := e.tracks[id]; ok {
		return ts.ring
	}
	return nil
}

// SetTrackProcessing replaces a track's signal processing configuration.
func (e *MultiTrackEngine) SetTrackProcessing(id TrackID, config ProcessorConfig) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts, ok := e.tracks[id]
	if !ok {
		return false
	}
	ts.processor.SetConfig(config)
	return true
}

// TrackProcessing returns a track's signal processing configuration.
func (e *MultiTrackEngine) TrackProcessing(id TrackID) (ProcessorConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts, ok := e.tracks[id]
	if !ok {
		return ProcessorConfig{}, false
	}
	return ts.processor.Config(), true
}

// SetGlobalProcessingMode applies one processing mode to every track.
func (e *MultiTrackEngine) SetGlobalProcessingMode(mode ProcessingMode) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ts := range e.tracks {
		ts.processor.SetMode(mode)
	}
	e.measurementProc.SetMode(mode)
}

// WaveformBridge returns the aggregated audio snapshot bridge.
func (e *MultiTrackEngine) WaveformBridge() *WaveformBridge {
	return e.waveformBridge
}

// MeasurementBridge returns the measurement snapshot bridge.
func (e *MultiTrackEngine) MeasurementBridge() *MeasurementBridge {
	return e.measurementBridge
}

// Stats returns a snapshot of the engine counters.
func (e *MultiTrackEngine) Stats() EngineStats {
	return EngineStats{
		BlocksProcessed:  e.blocksProcessed.Load(),
		SamplesProcessed: e.samplesProcessed.Load(),
		TracksAdded:      e.tracksAdded.Load(),
		TracksRemoved:    e.tracksRemoved.Load(),
	}
}

// ProcessAudioBlock routes one audio block into every active track's ring
// buffer, runs per-track signal processing, and publishes the aggregated
// waveform and measurement snapshots. Real-time path: no-op when unprepared
// or the block is empty, missing channels are skipped, nothing here can
// fail.
func (e *MultiTrackEngine) ProcessAudioBlock(channels [][]float32, numSamples int) {
	if numSamples <= 0 || len(channels) == 0 {
		return
	}

	// Snapshot the active tracks under the lock. Everything the hot loop
	// touches (channel index, ring pointer) is copied here so a concurrent
	// UpdateTrackInfo or PrepareToPlay cannot change it mid-block; all
	// audio copying happens after release.
	e.mu.Lock()
	if !e.prepared {
		e.mu.Unlock()
		return
	}
	e.scratch = e.scratch[:0]
	for _, ts := range e.tracks {
		if ts.info.Active && ts.info.ChannelIndex < len(channels) && ts.ring != nil {
			e.scratch = append(e.scratch, activeTrack{
				state: ts,
				ring:  ts.ring,
				ch:    ts.info.ChannelIndex,
			})
		}
	}
	sampleRate := e.sampleRate
	e.mu.Unlock()

	for _, at := range e.scratch {
		data := channels[at.ch]
		if data == nil {
			continue
		}
		n := min(numSamples, len(data))
		at.ring.Push(data[:n])
		at.state.samplesProcessed.Add(uint64(n))

		// Stereo-aware processing uses the neighboring channel as the
		// right side when present.
		right := data
		if at.ch+1 < len(channels) && channels[at.ch+1] != nil {
			right = channels[at.ch+1]
		}
		at.state.processor.ProcessBlock(data, right, n)
	}

	e.waveformBridge.PushAudioData(channels, numSamples, sampleRate)
	e.publishMeasurements(channels, numSamples)

	e.blocksProcessed.Add(1)
	e.samplesProcessed.Add(uint64(numSamples))
}

// publishMeasurements computes per-channel peak/RMS levels and stereo-image
// metrics for the current block and pushes them across the measurement
// bridge. Audio goroutine only.
func (e *MultiTrackEngine) publishMeasurements(channels [][]float32, numSamples int) {
	numChannels := min(len(channels), MaxChannels)

	for ch := range numChannels {
		data := channels[ch]
		if data == nil {
			e.peakScratch[ch] = 0
			e.rmsScratch[ch] = 0
			continue
		}
		n := min(numSamples, len(data))
		var peak float32
		var sumSquares float64
		for _, v := range data[:n] {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
			sumSquares += float64(v) * float64(v)
		}
		e.peakScratch[ch] = peak
		if n > 0 {
			e.rmsScratch[ch] = float32(math.Sqrt(sumSquares / float64(n)))
		} else {
			e.rmsScratch[ch] = 0
		}
	}

	frame := e.waveformBridge.FrameCount()
	e.measurement.UpdateLevels(e.peakScratch[:numChannels], e.rmsScratch[:numChannels], frame)

	if numChannels >= 2 && channels[0] != nil && channels[1] != nil {
		e.measurementProc.ProcessBlock(channels[0], channels[1], numSamples)
		metrics := e.measurementProc.Metrics()
		if metrics.SampleCount() > 0 {
			e.measurement.UpdateStereoImage(metrics.Correlation, metrics.StereoWidth, frame)
		}
	} else {
		e.measurement.CorrelationValid = false
		e.measurement.StereoWidthValid = false
	}

	e.measurementBridge.PushMeasurements(&e.measurement)
}
