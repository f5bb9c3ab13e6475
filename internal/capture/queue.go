package capture

import (
	"fmt"
	"sync"
)

// FrameQueue is a fixed-capacity ring of frames shared by one producer and
// one consumer. Push never waits: when the ring is full the frame is dropped
// and counted.
type FrameQueue struct {
	mu sync.Mutex

	// samples holds capacity*channels values, frame i at [i*channels:(i+1)*channels]
	samples  []float32
	channels int
	capacity int

	head  int // next read slot
	tail  int // next write slot
	count int

	sealed    bool
	overflows uint64
	rejected  uint64
}

// NewFrameQueue allocates a queue holding up to capacity frames of the given width
func NewFrameQueue(capacity, channels int) (*FrameQueue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be > 0, got %d", capacity)
	}
	if channels <= 0 || channels > MaxChannels {
		return nil, fmt.Errorf("queue channels must be between 1 and %d, got %d", MaxChannels, channels)
	}

	return &FrameQueue{
		samples:  make([]float32, capacity*channels),
		channels: channels,
		capacity: capacity,
	}, nil
}

// Push copies one frame into the ring. It returns false if the frame was not
// accepted because the ring is full, sealed, or the frame has the wrong width.
func (q *FrameQueue) Push(values []float32) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.sealed {
		return false
	}
	if len(values) != q.channels {
		q.rejected++
		return false
	}
	if q.count == q.capacity {
		q.overflows++
		return false
	}

	offset := q.tail * q.channels
	copy(q.samples[offset:offset+q.channels], values)
	q.tail++
	if q.tail == q.capacity {
		q.tail = 0
	}
	q.count++
	return true
}

// DrainAll removes and returns every buffered frame in push order.
// Returns nil if the queue is empty.
func (q *FrameQueue) DrainAll() []Frame {
	q.mu.Lock()
	n := q.count
	if n == 0 {
		q.mu.Unlock()
		return nil
	}

	flat := make([]float32, n*q.channels)
	first := min(n, q.capacity-q.head)
	copy(flat, q.samples[q.head*q.channels:(q.head+first)*q.channels])
	if first < n {
		copy(flat[first*q.channels:], q.samples[:(n-first)*q.channels])
	}
	q.head, q.tail, q.count = 0, 0, 0
	channels := q.channels
	q.mu.Unlock()

	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = Frame(flat[i*channels : (i+1)*channels : (i+1)*channels])
	}
	return frames
}

// Seal makes every subsequent Push fail without counting an overflow.
// Frames already buffered stay available to DrainAll.
func (q *FrameQueue) Seal() {
	q.mu.Lock()
	q.sealed = true
	q.mu.Unlock()
}

// Reset empties the queue and accepts pushes again. Counters are kept.
func (q *FrameQueue) Reset() {
	q.mu.Lock()
	q.head, q.tail, q.count = 0, 0, 0
	q.sealed = false
	q.mu.Unlock()
}

// IsFull reports whether the next Push would overflow
func (q *FrameQueue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count == q.capacity
}

// Sealed reports whether pushes are currently refused
func (q *FrameQueue) Sealed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sealed
}

// Len returns the number of buffered frames
func (q *FrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Overflows returns how many pushes were dropped because the queue was full
func (q *FrameQueue) Overflows() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflows
}

// Rejected returns how many pushes were dropped for having the wrong width
func (q *FrameQueue) Rejected() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rejected
}

// Cap returns the capacity in frames
func (q *FrameQueue) Cap() int {
	return q.capacity
}

// Channels returns the frame width
func (q *FrameQueue) Channels() int {
	return q.channels
}
