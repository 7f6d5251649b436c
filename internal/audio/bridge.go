package audio

import (
	"sync/atomic"
)

// Bridge is a wait-free latest-wins exchange of a fixed-size snapshot
// between exactly one producer and exactly one consumer. A push that happens
// before a pull is always observed; pushes between two pulls supersede each
// other, so the consumer only ever sees the freshest snapshot.
//
// The implementation is a three-slot mailbox: the producer and consumer each
// own one slot at any time and the third is in flight, published through a
// single atomic word holding the slot index plus a freshness bit. Slot
// ownership is exchanged with atomic swaps, so neither side ever touches a
// slot the other is using and neither side can spin or block.
type Bridge[T any] struct {
	slots [3]T

	// latest holds the most recently published slot index, with freshBit
	// set until the consumer takes it.
	latest atomic.Uint32

	writeSlot uint32 // producer-owned slot index
	readSlot  uint32 // consumer-owned slot index

	pushes atomic.Uint64
	pulls  atomic.Uint64
	frames atomic.Uint64
}

const (
	slotMask = 0x03
	freshBit = 0x04
)

// NewBridge creates an empty bridge.
func NewBridge[T any]() *Bridge[T] {
	b := &Bridge[T]{}
	b.init()
	return b
}

func (b *Bridge[T]) init() {
	b.writeSlot = 0
	b.readSlot = 1
	b.latest.Store(2) // third slot in flight, not fresh
}

// WriteSlot returns the producer-owned snapshot to fill before Publish.
// Producer side only.
func (b *Bridge[T]) WriteSlot() *T {
	return &b.slots[b.writeSlot]
}

// Publish makes the filled write slot visible to the consumer, superseding
// any unread previous publish. Returns the frame counter stamped on this
// publish. Producer side only; wait-free, never allocates.
func (b *Bridge[T]) Publish() uint64 {
	frame := b.frames.Add(1)
	old := b.latest.Swap(b.writeSlot | freshBit)
	b.writeSlot = old & slotMask
	b.pushes.Add(1)
	return frame
}

// Pull copies the most recent published snapshot into out and returns true,
// or returns false when nothing new arrived since the previous pull.
// Consumer side only.
func (b *Bridge[T]) Pull(out *T) bool {
	if b.latest.Load()&freshBit == 0 {
		return false
	}

	// Only the consumer clears freshness, so the swapped-out value is
	// guaranteed fresh here.
	old := b.latest.Swap(b.readSlot)
	b.readSlot = old & slotMask
	*out = b.slots[b.readSlot]
	b.pulls.Add(1)
	return true
}

// FrameCount returns the number of frames stamped so far.
func (b *Bridge[T]) FrameCount() uint64 { return b.frames.Load() }

// TotalPushed returns the number of completed publishes.
func (b *Bridge[T]) TotalPushed() uint64 { return b.pushes.Load() }

// TotalPulled returns the number of successful pulls.
func (b *Bridge[T]) TotalPulled() uint64 { return b.pulls.Load() }

// ResetStats zeroes the bridge counters. For tests and diagnostics.
func (b *Bridge[T]) ResetStats() {
	b.pushes.Store(0)
	b.pulls.Store(0)
	b.frames.Store(0)
}

// WaveformBridge moves audio snapshots from the capture goroutine to the
// visualization consumer.
type WaveformBridge struct {
	Bridge[AudioSnapshot]
}

// NewWaveformBridge creates an empty waveform bridge.
func NewWaveformBridge() *WaveformBridge {
	wb := &WaveformBridge{}
	wb.init()
	return wb
}

// PushAudioData copies the block into the write-side snapshot, stamps it
// with the next frame counter, and publishes it. Real-time safe.
func (wb *WaveformBridge) PushAudioData(channels [][]float32, numSamples int, sampleRate float64) {
	if len(channels) == 0 || numSamples <= 0 {
		return
	}
	snap := wb.WriteSlot()
	snap.CopyFrom(channels, numSamples, wb.FrameCount()+1, sampleRate)
	wb.Publish()
}

// MeasurementBridge moves measurement snapshots from the capture goroutine
// to monitoring consumers.
type MeasurementBridge struct {
	Bridge[MeasurementSnapshot]
	nextID atomic.Uint32
}

// NewMeasurementBridge creates an empty measurement bridge.
func NewMeasurementBridge() *MeasurementBridge {
	mb := &MeasurementBridge{}
	mb.init()
	return mb
}

// PushMeasurements publishes a measurement snapshot. The snapshot is copied
// into the write slot and stamped with an incrementing measurement id.
func (mb *MeasurementBridge) PushMeasurements(m *MeasurementSnapshot) {
	slot := mb.WriteSlot()
	*slot = *m
	slot.MeasurementID = mb.nextID.Add(1)
	mb.Publish()
}
