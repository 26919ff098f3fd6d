// Package queue implements the bounded, single-writer/multi-reader ring
// buffer used by each Path to mediate between its source Node and its
// destination Nodes and history-window hooks.
//
// The writer cursor W and every reader cursor R_i are independent atomic
// counters; a slot is safe to reuse once every reader has advanced past it.
// Slot storage itself is written exactly once (by the writer) before the
// writer cursor is published, so readers trailing the writer never observe
// a half-written slot.
package queue

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/villasnode/villasnode-go/internal/sample"
)

// ErrNotPowerOfTwo is returned by New when the requested slot count isn't a
// power of two.
var ErrNotPowerOfTwo = fmt.Errorf("queue: slot count must be a power of two")

// ReaderID identifies a registered reader cursor within a Queue.
type ReaderID int

type reader struct {
	cursor atomic.Uint64
}

// Queue is a bounded circular buffer of Sample references.
type Queue struct {
	mask uint64
	size uint64
	slots []atomic.Pointer[sample.Sample]

	writer atomic.Uint64

	mu        sync.RWMutex
	readers   []*reader
	activated atomic.Bool // true once the first push has happened
}

// New allocates a Queue with slotCount slots (must be a power of two).
func New(slotCount int) (*Queue, error) {
	if slotCount <= 0 || slotCount&(slotCount-1) != 0 {
		return nil, ErrNotPowerOfTwo
	}
	return &Queue{
		mask:  uint64(slotCount - 1),
		size:  uint64(slotCount),
		slots: make([]atomic.Pointer[sample.Sample], slotCount),
	}, nil
}

// Len returns the queue's slot capacity Q.
func (q *Queue) Len() int { return int(q.size) }

// WriterPos returns the current writer cursor W.
func (q *Queue) WriterPos() uint64 { return q.writer.Load() }

// RegisterReader installs a new reader cursor initialized to cursorInit.
// It may only be called during path preparation, before the first push;
// calling it afterward panics, since a reader registered after traffic has
// started could silently miss samples already released.
func (q *Queue) RegisterReader(cursorInit uint64) ReaderID {
	if q.activated.Load() {
		panic("queue: RegisterReader called after the queue has been activated")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	r := &reader{}
	r.cursor.Store(cursorInit)
	q.readers = append(q.readers, r)
	return ReaderID(len(q.readers) - 1)
}

// ReaderPos returns reader id's current cursor.
func (q *Queue) ReaderPos(id ReaderID) uint64 {
	q.mu.RLock()
	r := q.readers[id]
	q.mu.RUnlock()
	return r.cursor.Load()
}

// minReaderPos returns min_i R_i, or the writer position if there are no
// registered readers (an empty queue never blocks progress).
func (q *Queue) minReaderPos() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.readers) == 0 {
		return q.writer.Load()
	}
	min := q.readers[0].cursor.Load()
	for _, r := range q.readers[1:] {
		if c := r.cursor.Load(); c < min {
			min = c
		}
	}
	return min
}

// PushMany is the writer-only enqueue operation. It writes as many of
// samples[:n] as fit without overrunning the slowest reader (W - min_i R_i
// <= Q) and returns the number actually pushed; unwritten samples remain
// the caller's responsibility. The writer cursor is advanced atomically
// only after the corresponding slots have been written.
func (q *Queue) PushMany(samples []*sample.Sample, n int) int {
	q.activated.Store(true)

	w := q.writer.Load()
	minR := q.minReaderPos()
	lead := w - minR
	var room uint64
	if lead < q.size {
		room = q.size - lead
	}
	pushed := n
	if uint64(pushed) > room {
		pushed = int(room)
	}
	if pushed <= 0 {
		return 0
	}

	for i := 0; i < pushed; i++ {
		idx := (w + uint64(i)) & q.mask
		q.slots[idx].Store(samples[i])
	}
	q.writer.Store(w + uint64(pushed))
	return pushed
}

// PullMany advances reader id's cursor by up to n and returns the Samples
// it passed, in FIFO push order. Returns 0 (never an error) when the reader
// is caught up with the writer.
func (q *Queue) PullMany(id ReaderID, out []*sample.Sample, n int) int {
	q.mu.RLock()
	r := q.readers[id]
	q.mu.RUnlock()

	return q.pullFrom(r, out, n, true)
}

// Peek is a non-advancing read of up to n Samples starting at base (an
// explicit cursor position, not necessarily the reader's own), used by the
// rate-driven send path to resend the previously sent batch without
// advancing the destination's cursor.
func (q *Queue) Peek(base uint64, out []*sample.Sample, n int) int {
	w := q.writer.Load()
	avail := int(w - base)
	if avail < 0 {
		avail = 0
	}
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		idx := (base + uint64(i)) & q.mask
		out[i] = q.slots[idx].Load()
	}
	return n
}

func (q *Queue) pullFrom(r *reader, out []*sample.Sample, n int, advance bool) int {
	w := q.writer.Load()
	cur := r.cursor.Load()
	avail := int(w - cur)
	if avail <= 0 {
		return 0
	}
	if n > avail {
		n = avail
	}
	for i := 0; i < n; i++ {
		idx := (cur + uint64(i)) & q.mask
		out[i] = q.slots[idx].Load()
	}
	if advance {
		r.cursor.Store(cur + uint64(n))
	}
	return n
}
