package audio

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/oscil-go/internal/dsp"
)

// TrackID is the globally unique, immutable identifier of a track. The zero
// value is the invalid sentinel returned when a track cannot be created.
// Identity comparison via == is the only valid way to reference a track;
// positional indices are not stable across removal.
type TrackID string

// NewTrackID generates a fresh unique track id.
func NewTrackID() TrackID {
	return TrackID(uuid.NewString())
}

// IsValid reports whether the id refers to a created track.
func (id TrackID) IsValid() bool {
	return id != ""
}

// NumTrackColors is the size of the round-robin display color palette.
const NumTrackColors = 8

// TrackInfo holds the mutable configuration and metadata of a track.
type TrackInfo struct {
	ID           TrackID
	Name         string
	ChannelIndex int  // which input channel this track captures
	Active       bool // whether this track is currently capturing
	Visible      bool // whether this track should be displayed
	ColorIndex   int  // display color slot, assigned round-robin

	// SamplesProcessed is the cumulative sample count; preserved across
	// UpdateTrackInfo.
	SamplesProcessed uint64
}

// trackState is the capture state owned by the engine for one track.
type trackState struct {
	ring      *dsp.RingBuffer[float32]
	processor *SignalProcessor
	info      TrackInfo

	// samplesProcessed is written by the audio goroutine without the
	// structural lock; TrackInfo getters fold it back in.
	samplesProcessed atomic.Uint64
}

func newTrackState(info TrackInfo, bufferCapacity int) *trackState {
	return &trackState{
		ring:      dsp.NewRingBuffer[float32](bufferCapacity),
		processor: NewSignalProcessor(DefaultProcessorConfig()),
		info:      info,
	}
}

// activeTrack is one hot-loop entry captured under the structural lock:
// the fields ProcessAudioBlock needs, frozen for the duration of a block so
// concurrent structural mutation cannot change them mid-copy.
type activeTrack struct {
	state *trackState
	ring  *dsp.RingBuffer[float32]
	ch    int
}

// snapshotInfo returns the track info with the live sample counter applied.
func (ts *trackState) snapshotInfo() TrackInfo {
	info := ts.info
	info.SamplesProcessed = ts.samplesProcessed.Load()
	return info
}
