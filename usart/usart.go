// Package usart implements a full-duplex, interrupt-driven serial driver
// over the hw register model. Baud-rate and frame-format programming
// happen once per Init; after that every byte moves in handler context,
// one byte per vector invocation, never blocking. The application side
// produces the transmit queue and consumes the receive queue, directly or
// through the io helpers.
package usart

import (
	"go.uber.org/atomic"

	"usartio-go/fifo"
	"usartio-go/hw"
)

// Init state machine positions.
const (
	stateUninitialized uint32 = iota
	stateConfiguring
	stateOperational
)

// Config carries construction parameters. Zero values get defaults: a
// 16 MHz clock and 64-byte queues.
type Config struct {
	Clock uint32     // peripheral clock in Hz
	RX    *fifo.Ring // receive queue: driver produces, application consumes
	TX    *fifo.Ring // transmit queue: application produces, driver consumes
}

// Driver owns one peripheral. The queue handles stay valid for the
// driver's lifetime. Handlers pop the transmit queue only under vector
// dispatch, which serializes them, so each queue keeps a single logical
// producer and consumer.
type Driver struct {
	bank *hw.Bank
	vt   *hw.Controller
	rx   *fifo.Ring
	tx   *fifo.Ring

	clock uint32
	state atomic.Uint32

	divisor     atomic.Uint32
	doubleSpeed atomic.Bool

	ctr counters
}

const defaultQueueSize = 64

// New builds a driver over bank and vt. Nothing touches hardware until
// Init.
func New(bank *hw.Bank, vt *hw.Controller, cfg Config) *Driver {
	if cfg.Clock == 0 {
		cfg.Clock = DefaultClock
	}
	if cfg.RX == nil {
		cfg.RX = fifo.New(defaultQueueSize)
	}
	if cfg.TX == nil {
		cfg.TX = fifo.New(defaultQueueSize)
	}
	return &Driver{bank: bank, vt: vt, rx: cfg.RX, tx: cfg.TX, clock: cfg.Clock}
}

// RXQueue returns the receive queue handle.
func (d *Driver) RXQueue() *fifo.Ring { return d.rx }

// TXQueue returns the transmit queue handle.
func (d *Driver) TXQueue() *fifo.Ring { return d.tx }

// Clock returns the peripheral clock the driver was built with.
func (d *Driver) Clock() uint32 { return d.clock }

// Divisor returns the programmed prescaler divisor, zero before Init.
func (d *Driver) Divisor() uint32 { return d.divisor.Load() }

// DoubleSpeed reports whether the /8 prescaler factor is programmed.
func (d *Driver) DoubleSpeed() bool { return d.doubleSpeed.Load() }

// State reports the init state machine position.
func (d *Driver) State() string {
	switch d.state.Load() {
	case stateConfiguring:
		return "configuring"
	case stateOperational:
		return "operational"
	default:
		return "uninitialized"
	}
}

// Init computes and programs the baud and frame configuration, then arms
// the interrupt paths. Completion is synchronous. Init may be called
// again to reconfigure; the previous configuration is discarded wholesale.
func (d *Driver) Init(baud uint32, mode uint16) error {
	bs, err := SelectBaud(d.clock, baud)
	if err != nil {
		return err
	}
	d.state.Store(stateConfiguring)

	d.vt.Install(hw.VecRxComplete, d.onRxComplete)
	d.vt.Install(hw.VecDataEmpty, d.onDataEmpty)
	d.vt.Install(hw.VecTxComplete, d.onTxComplete)

	// Everything off first, so no vector fires over half-applied settings.
	d.bank.Control.Set(0)

	d.bank.Frame.Set(frameBits(mode))
	d.bank.BaudDiv.Set(bs.Divisor)
	st := uint32(0)
	if bs.DoubleSpeed {
		st = hw.StatusDoubleSpeed
	}
	d.bank.Status.Set(st)

	// One write arms both directions.
	var ctl uint32
	if mode&(1<<11) != 0 {
		ctl |= hw.CtrlSizeHigh
	}
	if mode&ModeRXEN != 0 {
		ctl |= hw.CtrlRxIntEnable | hw.CtrlRxEnable
	}
	if mode&ModeTXEN != 0 {
		ctl |= hw.CtrlTxIntEnable | hw.CtrlTxEnable | hw.CtrlEmptyIntEnable
	}
	d.bank.Control.Set(ctl)

	// New transmit data wakes the idle peripheral through the kick.
	d.tx.OnEvent(fifo.EventNew, d.kick)

	d.divisor.Store(bs.Divisor)
	d.doubleSpeed.Store(bs.DoubleSpeed)
	d.state.Store(stateOperational)
	return nil
}

// frameBits maps the mode word's frame sub-fields onto the frame register.
func frameBits(mode uint16) uint32 {
	m := uint32(mode)
	return (m>>14&0x3)<<hw.FrameOpModeShift |
		(m>>5&0x3)<<hw.FrameParityShift |
		(m>>8&0x1)<<hw.FrameStopShift |
		(m>>9&0x3)<<hw.FrameSizeShift |
		(m>>7&0x1)<<hw.FramePolarityShift
}

// onRxComplete moves one byte from the data window to the receive queue.
// A full queue drops the byte silently; handler context has nowhere to
// report to, so the loss only shows up in the counters.
func (d *Driver) onRxComplete() {
	st := d.bank.Status.Get()
	b := byte(d.bank.Data.Get()) // the read releases the latch
	if st&(hw.StatusFrameError|hw.StatusParityError|hw.StatusOverrun) != 0 {
		if st&hw.StatusFrameError != 0 {
			d.ctr.frameErrors.Inc()
		}
		if st&hw.StatusParityError != 0 {
			d.ctr.parityErrors.Inc()
		}
		if st&hw.StatusOverrun != 0 {
			d.ctr.overruns.Inc()
		}
		d.bank.Status.ClearBits(hw.StatusFrameError | hw.StatusParityError | hw.StatusOverrun)
	}
	if err := d.rx.TryPush(b); err != nil {
		d.ctr.rxQueueDrops.Inc()
		return
	}
	d.ctr.rxBytes.Inc()
}

// onDataEmpty runs when the holding register can take a byte.
func (d *Driver) onDataEmpty() { d.pump() }

// onTxComplete runs when the line goes idle. Vector entry consumes the
// flag so the next kick is a fresh edge.
func (d *Driver) onTxComplete() {
	d.bank.Status.ClearBits(hw.StatusTxComplete)
	d.pump()
}

// pump moves at most one byte from the transmit queue to the data window.
// An empty queue leaves the peripheral idle until the next kick.
func (d *Driver) pump() {
	b, ok := d.tx.TryPop()
	if !ok {
		return
	}
	d.bank.Data.Set(uint32(b))
	d.ctr.txBytes.Inc()
}

// kick runs on the transmit queue's new-data hook: forcing the
// transmit-complete condition makes idle hardware notice the byte. While
// a drain is active it merely coalesces into the pending mask.
func (d *Driver) kick(fifo.Event) {
	d.bank.Status.SetBits(hw.StatusTxComplete)
	d.ctr.kicks.Inc()
}
