package hw

import (
	"sync"
	"sync/atomic"
)

// Vector identifies one interrupt entry point. Dispatch priority is
// declaration order: receive first, then data-empty, then transmit-complete.
type Vector uint8

const (
	VecRxComplete Vector = iota
	VecDataEmpty
	VecTxComplete

	numVectors
)

// Controller models the vector table and interrupt delivery.
//
// Handlers are mutually exclusive and run to completion. A vector raised
// while a handler runs is latched in the pending mask and dispatched before
// the active drain finishes, never nested; this is the software equivalent
// of interrupts latching during an ISR and firing at return. A raise with
// no drain active runs the handlers synchronously on the raising goroutine.
type Controller struct {
	mu       sync.Mutex         // held for the duration of a drain
	pending  atomic.Uint32      // bitmask of latched vectors
	handlers [numVectors]func() // guarded by mu
}

func NewController() *Controller { return &Controller{} }

// Install binds h to v, replacing any previous handler. Not callable from
// handler context.
func (c *Controller) Install(v Vector, h func()) {
	if v >= numVectors {
		return
	}
	c.mu.Lock()
	c.handlers[v] = h
	c.mu.Unlock()
	c.dispatch() // anything latched while the table was held
}

// Raise latches v and dispatches it, unless a drain is active, in which
// case the active drain picks it up.
func (c *Controller) Raise(v Vector) {
	if v >= numVectors {
		return
	}
	c.pending.Or(1 << v)
	c.dispatch()
}

// Pending returns the latched-but-undispatched vector mask.
func (c *Controller) Pending() uint32 { return c.pending.Load() }

func (c *Controller) dispatch() {
	for c.pending.Load() != 0 {
		if !c.mu.TryLock() {
			// The drain holding the mutex re-checks pending before
			// releasing, so the latched bit is not lost.
			return
		}
		for {
			bits := c.pending.Swap(0)
			if bits == 0 {
				break
			}
			for v := Vector(0); v < numVectors; v++ {
				if bits&(1<<v) != 0 && c.handlers[v] != nil {
					c.handlers[v]()
				}
			}
		}
		c.mu.Unlock()
	}
}
