package hw

import "sync/atomic"

// Transceiver gives the register bank its transfer behaviour. The model is
// synchronous: a byte written to the data window is absorbed, shifted out
// and completed within the write, so flag and vector sequencing stays
// deterministic. Conditions raise vectors on edges only; once the transmit
// side runs dry the peripheral is idle until something sets the
// transmit-complete flag again.
type Transceiver struct {
	bank Bank
	vt   *Controller

	rxLatch   atomic.Uint32 // byte behind the data-window read
	absorbing atomic.Bool   // true while a byte is in flight through dataWrite

	sink func(byte) // line tap; transmitted bytes land here
}

// NewTransceiver wires a register bank to vt. The returned peripheral is at
// reset: holding register empty, everything else zero.
func NewTransceiver(vt *Controller) *Transceiver {
	t := &Transceiver{vt: vt}
	t.bank.Status.Set(StatusDataEmpty)
	// Hooks go in after the reset value so construction raises nothing.
	t.bank.Data.rdFn = t.dataRead
	t.bank.Data.wrFn = t.dataWrite
	t.bank.Status.wrFn = t.statusWrite
	t.bank.Control.wrFn = t.controlWrite
	return t
}

// Bank exposes the register block.
func (t *Transceiver) Bank() *Bank { return &t.bank }

// OnTransmit sets the line sink, invoked once per transmitted byte on the
// goroutine driving the transfer. Install before traffic starts.
func (t *Transceiver) OnTransmit(fn func(byte)) { t.sink = fn }

// ReceiveByte presents one byte on the line's receive side. At most one
// goroutine may feed the line.
func (t *Transceiver) ReceiveByte(b byte) { t.ReceiveByteErr(b, 0) }

// ReceiveByteErr presents a byte together with receiver error flags
// (StatusFrameError, StatusParityError) captured with it. A disabled
// receiver ignores the byte; an unread previous byte is kept and the new
// one is lost as an overrun.
func (t *Transceiver) ReceiveByteErr(b byte, flags uint32) {
	if !t.bank.Control.Has(CtrlRxEnable) {
		return
	}
	if t.bank.Status.Has(StatusRxComplete) {
		t.bank.Status.SetBits(StatusOverrun)
		return
	}
	t.rxLatch.Store(uint32(b))
	t.bank.Status.SetBits((flags & (StatusFrameError | StatusParityError)) | StatusRxComplete)
}

// dataRead consumes the receive latch: reading the data window clears the
// data-available condition.
func (t *Transceiver) dataRead() uint32 {
	b := t.rxLatch.Load()
	t.bank.Status.ClearBits(StatusRxComplete)
	return b
}

// dataWrite transmits: holding register absorbs the byte, the shifter
// drains it to the line, completion flags follow.
func (t *Transceiver) dataWrite(_, cur uint32) {
	if !t.bank.Control.Has(CtrlTxEnable) {
		return
	}
	t.absorbing.Store(true)
	t.bank.Status.ClearBits(StatusDataEmpty)
	if fn := t.sink; fn != nil {
		fn(byte(cur))
	}
	t.absorbing.Store(false)
	t.bank.Status.SetBits(StatusDataEmpty)
	t.bank.Status.SetBits(StatusTxComplete)
}

// statusWrite raises vectors for flags that rose while their interrupt is
// unmasked, and keeps hardware-owned truth intact: the data-empty flag
// cannot be written away while no byte is in flight.
func (t *Transceiver) statusWrite(old, cur uint32) {
	ctl := t.bank.Control.Get()
	rose := cur &^ old
	if rose&StatusRxComplete != 0 && ctl&CtrlRxIntEnable != 0 {
		t.vt.Raise(VecRxComplete)
	}
	if rose&StatusDataEmpty != 0 && ctl&CtrlEmptyIntEnable != 0 {
		t.vt.Raise(VecDataEmpty)
	}
	if rose&StatusTxComplete != 0 && ctl&CtrlTxIntEnable != 0 {
		t.vt.Raise(VecTxComplete)
	}
	if cur&StatusDataEmpty == 0 && !t.absorbing.Load() {
		t.bank.Status.SetBits(StatusDataEmpty)
	}
}

// controlWrite re-evaluates newly unmasked interrupts against the standing
// flags, so enabling a side with a pending condition delivers it.
func (t *Transceiver) controlWrite(old, cur uint32) {
	st := t.bank.Status.Get()
	newly := cur &^ old
	if newly&CtrlRxIntEnable != 0 && st&StatusRxComplete != 0 {
		t.vt.Raise(VecRxComplete)
	}
	if newly&CtrlEmptyIntEnable != 0 && st&StatusDataEmpty != 0 {
		t.vt.Raise(VecDataEmpty)
	}
	if newly&CtrlTxIntEnable != 0 && st&StatusTxComplete != 0 {
		t.vt.Raise(VecTxComplete)
	}
}
