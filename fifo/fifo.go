// Package fifo provides the fixed-capacity byte queues the USART driver
// pumps traffic through: single-producer/single-consumer rings with
// non-blocking operations, coalesced readiness channels and a masked
// consumer event hook.
package fifo

import (
	"errors"
	"sync/atomic"
)

// ErrFull is returned by TryPush when the ring has no free space.
var ErrFull = errors.New("fifo_full")

// Event identifies a queue transition delivered to the registered hook.
type Event uint8

const (
	// EventNew fires after bytes are enqueued.
	EventNew Event = 1 << iota
	// EventFree fires after space is released by the consumer.
	EventFree
)

type hookInfo struct {
	mask Event
	fn   func(Event)
}

// Ring is a single-producer, single-consumer byte ring. The producer side
// (TryPush, WriteFrom) and the consumer side (TryPop, ReadInto) may run on
// different goroutines without locking; each side must have at most one
// caller active at a time.
type Ring struct {
	buf  []byte
	mask uint32
	rd   atomic.Uint32 // consumer index (monotonic)
	wr   atomic.Uint32 // producer index (monotonic)

	readable chan struct{} // push token, cap 1, coalesced
	writable chan struct{} // pop token, cap 1, coalesced

	hook atomic.Pointer[hookInfo]
}

// New creates a ring. Size must be a power of two >= 2.
func New(size int) *Ring {
	if size < 2 || (size&(size-1)) != 0 {
		panic("fifo: size must be power of two >= 2")
	}
	return &Ring{
		buf:      make([]byte, size),
		mask:     uint32(size - 1),
		readable: make(chan struct{}, 1),
		writable: make(chan struct{}, 1),
	}
}

// OnEvent registers fn as the event hook, invoked synchronously on the
// goroutine performing the triggering operation for every event class in
// mask. A nil fn removes the hook; re-registration replaces it.
func (r *Ring) OnEvent(mask Event, fn func(Event)) {
	if fn == nil {
		r.hook.Store(nil)
		return
	}
	r.hook.Store(&hookInfo{mask: mask, fn: fn})
}

func (r *Ring) emit(ev Event) {
	if h := r.hook.Load(); h != nil && h.mask&ev != 0 {
		h.fn(ev)
	}
}

func (r *Ring) size() uint32 { return uint32(len(r.buf)) }

// Cap returns the ring capacity in bytes.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of buffered bytes.
func (r *Ring) Len() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(wr - rd)
}

// Free returns the remaining space in bytes.
func (r *Ring) Free() int {
	rd := r.rd.Load()
	wr := r.wr.Load()
	return int(r.size() - (wr - rd))
}

// Readable yields a token after every push. The cap-1 channel coalesces
// bursts, so a waiter must drain the ring before parking again; a push
// racing the pop that empties the ring still leaves a token behind.
func (r *Ring) Readable() <-chan struct{} { return r.readable }

// Writable yields a token after every pop, coalesced the same way.
func (r *Ring) Writable() <-chan struct{} { return r.writable }

// ---- producer side ----

// TryPush enqueues one byte. A full ring is left untouched and reported
// as ErrFull without firing the hook.
func (r *Ring) TryPush(b byte) error {
	rd := r.rd.Load()
	wr := r.wr.Load()
	beforeAvail := wr - rd
	if beforeAvail >= r.size() {
		return ErrFull
	}
	r.buf[wr&r.mask] = b
	r.wr.Store(wr + 1) // release

	select {
	case r.readable <- struct{}{}:
	default:
	}
	r.emit(EventNew)
	return nil
}

// WriteFrom enqueues as much of src as fits and returns the count.
func (r *Ring) WriteFrom(src []byte) (n int) {
	if len(src) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load()
	beforeAvail := wr - rd
	space := int(r.size() - beforeAvail)
	if space <= 0 {
		return 0
	}
	if len(src) < space {
		space = len(src)
	}
	n = space

	size := r.size()
	wrIdx := wr & r.mask
	first := int(size - wrIdx)
	if first > n {
		first = n
	}
	copy(r.buf[wrIdx:wrIdx+uint32(first)], src[:first])
	if second := n - first; second > 0 {
		copy(r.buf[:second], src[first:n])
	}
	r.wr.Store(wr + uint32(n)) // release

	select {
	case r.readable <- struct{}{}:
	default:
	}
	r.emit(EventNew)
	return n
}

// ---- consumer side ----

// TryPop dequeues one byte. The index publication is a single atomic store,
// so a pop observed by the producer is always a completed pop.
func (r *Ring) TryPop() (byte, bool) {
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	if wr == rd {
		return 0, false
	}
	b := r.buf[rd&r.mask]
	r.rd.Store(rd + 1) // release

	select {
	case r.writable <- struct{}{}:
	default:
	}
	r.emit(EventFree)
	return b, true
}

// ReadInto dequeues up to len(dst) bytes and returns the count.
func (r *Ring) ReadInto(dst []byte) (n int) {
	if len(dst) == 0 {
		return 0
	}
	rd := r.rd.Load()
	wr := r.wr.Load() // acquire
	avail := int(wr - rd)
	if avail <= 0 {
		return 0
	}
	if len(dst) < avail {
		avail = len(dst)
	}
	n = avail

	size := r.size()
	rdIdx := rd & r.mask
	first := int(size - rdIdx)
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[rdIdx:rdIdx+uint32(first)])
	if second := n - first; second > 0 {
		copy(dst[first:n], r.buf[:second])
	}
	r.rd.Store(rd + uint32(n)) // release

	select {
	case r.writable <- struct{}{}:
	default:
	}
	r.emit(EventFree)
	return n
}
