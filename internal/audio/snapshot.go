// Package audio implements the multi-track capture engine and the lock-free
// data path between the real-time audio goroutine and non-real-time
// consumers.
package audio

const (
	// MaxChannels is the maximum number of channels a snapshot can carry.
	MaxChannels = 64

	// MaxSnapshotSamples is the maximum number of samples per channel in a
	// snapshot.
	MaxSnapshotSamples = 1024

	// DefaultSampleRate is assumed until PrepareToPlay provides a real rate.
	DefaultSampleRate = 44100.0
)

// AudioSnapshot is a fixed-size, heap-free block of audio for consumer
// threads. Excess input is truncated to the compile-time maxima, never
// reallocated.
type AudioSnapshot struct {
	NumChannels int
	NumSamples  int
	Timestamp   uint64 // monotonic frame counter
	SampleRate  float64

	// Samples is organized as [channel][sample]; only the first
	// NumChannels x NumSamples region is valid.
	Samples [MaxChannels][MaxSnapshotSamples]float32
}

// Clear resets the snapshot metadata and zeroes the sample region.
func (s *AudioSnapshot) Clear() {
	s.NumChannels = 0
	s.NumSamples = 0
	s.Timestamp = 0
	s.SampleRate = DefaultSampleRate
	for ch := range s.Samples {
		clear(s.Samples[ch][:])
	}
}

// CopyFrom fills the snapshot from per-channel sample slices, truncating to
// the snapshot maxima. Nil or short channel slices yield zeroed samples for
// the missing region.
func (s *AudioSnapshot) CopyFrom(channels [][]float32, numSamples int, timestamp uint64, sampleRate float64) {
	s.NumChannels = min(len(channels), MaxChannels)
	s.NumSamples = min(numSamples, MaxSnapshotSamples)
	s.Timestamp = timestamp
	s.SampleRate = sampleRate

	for ch := range s.NumChannels {
		dst := s.Samples[ch][:s.NumSamples]
		src := channels[ch]
		n := copy(dst, src)
		if n < len(dst) {
			clear(dst[n:])
		}
	}
}

// MeasurementSnapshot carries level and stereo-image measurements computed
// on the audio thread for consumer threads. Same fixed-size discipline as
// AudioSnapshot.
type MeasurementSnapshot struct {
	Correlation      float32 // Pearson correlation coefficient [-1, 1]
	CorrelationValid bool

	StereoWidth      float32 // stereo width metric [0, 2]
	StereoWidthValid bool

	PeakLevels  [MaxChannels]float32
	RMSLevels   [MaxChannels]float32
	NumChannels int
	LevelsValid bool

	Timestamp     uint64 // frame counter at measurement time
	MeasurementID uint32 // incrementing id for freshness tracking
}

// Clear resets all measurements to safe values.
func (m *MeasurementSnapshot) Clear() {
	*m = MeasurementSnapshot{}
}

// UpdateLevels stores per-channel peak and RMS levels, zeroing unused slots.
func (m *MeasurementSnapshot) UpdateLevels(peaks, rms []float32, timestamp uint64) {
	n := min(len(peaks), len(rms), MaxChannels)
	copy(m.PeakLevels[:n], peaks[:n])
	copy(m.RMSLevels[:n], rms[:n])
	clear(m.PeakLevels[n:])
	clear(m.RMSLevels[n:])
	m.NumChannels = n
	m.LevelsValid = true
	m.Timestamp = timestamp
}

// UpdateStereoImage stores correlation-derived measurements.
func (m *MeasurementSnapshot) UpdateStereoImage(correlation, stereoWidth float32, timestamp uint64) {
	m.Correlation = correlation
	m.CorrelationValid = true
	m.StereoWidth = stereoWidth
	m.StereoWidthValid = true
	m.Timestamp = timestamp
}
