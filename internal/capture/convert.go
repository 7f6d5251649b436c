package capture

import "encoding/binary"

// bytesPerSample is the size of one signed 16-bit PCM sample.
const bytesPerSample = 2

// deinterleaveS16 converts interleaved signed 16-bit little-endian PCM into
// per-channel float32 slices in [-1, 1], applying the given linear gain.
// The out slices must each hold numFrames samples.
func deinterleaveS16(raw []byte, out [][]float32, numFrames int, gain float32) {
	channels := len(out)
	for frame := range numFrames {
		base := frame * channels * bytesPerSample
		for ch := range channels {
			s := int16(binary.LittleEndian.Uint16(raw[base+ch*bytesPerSample:]))
			out[ch][frame] = float32(s) / 32768 * gain
		}
	}
}
