package usart

import "go.uber.org/atomic"

// Stats is a point-in-time snapshot of the driver's traffic counters.
type Stats struct {
	TxBytes      uint64
	RxBytes      uint64
	RxQueueDrops uint64 // receive queue full, byte discarded
	Overruns     uint64 // unread latch overwritten on the line side
	FrameErrors  uint64
	ParityErrors uint64
	Kicks        uint64 // transmit wake-ups forced by the queue hook
}

type counters struct {
	txBytes      atomic.Uint64
	rxBytes      atomic.Uint64
	rxQueueDrops atomic.Uint64
	overruns     atomic.Uint64
	frameErrors  atomic.Uint64
	parityErrors atomic.Uint64
	kicks        atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		TxBytes:      c.txBytes.Load(),
		RxBytes:      c.rxBytes.Load(),
		RxQueueDrops: c.rxQueueDrops.Load(),
		Overruns:     c.overruns.Load(),
		FrameErrors:  c.frameErrors.Load(),
		ParityErrors: c.parityErrors.Load(),
		Kicks:        c.kicks.Load(),
	}
}

// Stats returns a snapshot of the traffic counters.
func (d *Driver) Stats() Stats { return d.ctr.snapshot() }
