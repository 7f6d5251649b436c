// Package dsp provides the sample-storage primitives used on the real-time
// audio path.
package dsp

import (
	"sync/atomic"
)

// RingBuffer is a fixed-capacity single-producer/single-consumer circular
// buffer that overwrites the oldest elements when full. Exactly one goroutine
// may write (Push/PushOne) and exactly one may read (Size/PeekLatest).
//
// Storage is capacity+1 elements so a full buffer is distinguishable from an
// empty one without extra state. All index updates are single atomic stores;
// no operation locks, allocates, or fails.
type RingBuffer[T any] struct {
	buf  []T
	head atomic.Uint64 // next write position
	tail atomic.Uint64 // oldest valid position
}

// NewRingBuffer creates a ring buffer holding up to capacity elements.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		buf: make([]T, capacity+1),
	}
}

// Capacity returns the fixed element capacity.
func (rb *RingBuffer[T]) Capacity() int {
	return len(rb.buf) - 1
}

// Size returns the current number of stored elements.
func (rb *RingBuffer[T]) Size() int {
	h := rb.head.Load()
	t := rb.tail.Load()
	n := uint64(len(rb.buf))
	if h >= t {
		return int(h - t)
	}
	return int(n - (t - h))
}

// PushOne appends a single element, overwriting the oldest when full.
func (rb *RingBuffer[T]) PushOne(v T) {
	n := uint64(len(rb.buf))
	h := rb.head.Load()
	rb.buf[h] = v
	h = (h + 1) % n
	if h == rb.tail.Load() {
		rb.tail.Store((rb.tail.Load() + 1) % n)
	}
	rb.head.Store(h)
}

// Push appends the elements of data in order. When the buffer would
// overflow, the oldest elements are discarded one at a time so the temporal
// order of the surviving elements is preserved.
func (rb *RingBuffer[T]) Push(data []T) {
	for _, v := range data {
		rb.PushOne(v)
	}
}

// PeekLatest copies the most recent min(len(out), Size()) elements into out
// without consuming them. When the buffer holds fewer elements than
// requested, the leading slots of out are zero-filled so the newest element
// always lands at out[len(out)-1].
func (rb *RingBuffer[T]) PeekLatest(out []T) {
	n := uint64(len(rb.buf))
	want := len(out)
	current := rb.Size()

	toCopy := want
	if current < toCopy {
		toCopy = current
	}

	if want > current {
		var zero T
		for i := range want - current {
			out[i] = zero
		}
		out = out[want-current:]
	}

	h := rb.head.Load()
	start := (h + n - uint64(toCopy)) % n

	if int(start)+toCopy <= int(n) {
		copy(out, rb.buf[start:int(start)+toCopy])
	} else {
		first := int(n) - int(start)
		copy(out, rb.buf[start:])
		copy(out[first:], rb.buf[:toCopy-first])
	}
}
