// Package hw models the serial peripheral: a bank of volatile-style
// registers, the interrupt vector table, and a transceiver that gives the
// data window its transfer behaviour. The driver in package usart reaches
// hardware exclusively through this package.
package hw

import "sync/atomic"

// Reg is one 32-bit register word. Accesses go through atomics so handler
// context and application context always observe each other's writes.
//
// Data-window registers additionally carry access hooks: a read override
// (the read consumes hardware state) and a write observer (the write
// triggers peripheral behaviour). Hooks are wired once at transceiver
// construction, before any traffic.
type Reg struct {
	v    atomic.Uint32
	rdFn func() uint32          // optional read override
	wrFn func(old, cur uint32)  // optional write observer
}

// Get returns the register value. A read override replaces the raw cell.
func (r *Reg) Get() uint32 {
	if r.rdFn != nil {
		return r.rdFn()
	}
	return r.v.Load()
}

// Set stores the full register value. The write observer runs after the
// store, on the writer's goroutine.
func (r *Reg) Set(x uint32) {
	old := r.v.Swap(x)
	if r.wrFn != nil {
		r.wrFn(old, x)
	}
}

// SetBits sets bits. The observer runs only when the value changed.
func (r *Reg) SetBits(bits uint32) {
	old := r.v.Or(bits)
	if r.wrFn != nil && old&bits != bits {
		r.wrFn(old, old|bits)
	}
}

// ClearBits clears bits. The observer runs only when the value changed.
func (r *Reg) ClearBits(bits uint32) {
	old := r.v.And(^bits)
	if r.wrFn != nil && old&bits != 0 {
		r.wrFn(old, old&^bits)
	}
}

// ReplaceBits overwrites the field selected by mask with bits&mask.
func (r *Reg) ReplaceBits(mask, bits uint32) {
	for {
		old := r.v.Load()
		cur := (old &^ mask) | (bits & mask)
		if r.v.CompareAndSwap(old, cur) {
			if r.wrFn != nil && old != cur {
				r.wrFn(old, cur)
			}
			return
		}
	}
}

// Has reports whether all given bits are set.
func (r *Reg) Has(bits uint32) bool { return r.v.Load()&bits == bits }
