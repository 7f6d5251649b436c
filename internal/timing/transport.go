package timing

// Transport is a read-only view of the host transport for one audio block.
// A nil *Transport means no host is attached; optional fields use Has flags
// because hosts report position and tempo independently.
type Transport struct {
	Playing bool

	BPM    float64
	HasBPM bool

	// PPQPosition is the transport position in quarter notes at the start
	// of the current block.
	PPQPosition float64
	HasPPQ      bool

	TimeSigNumerator   int
	TimeSigDenominator int
}

// bpmToSamplesPerBeat converts a tempo to the beat length in samples.
func bpmToSamplesPerBeat(bpm, sampleRate float64) float64 {
	if bpm <= 0 || sampleRate <= 0 {
		return 22050 // 120 BPM at 44.1 kHz
	}
	return 60 * sampleRate / bpm
}

// timeToSamples converts a millisecond duration to a sample count.
func timeToSamples(timeMs, sampleRate float64) int {
	if timeMs <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(timeMs / 1000 * sampleRate)
}
