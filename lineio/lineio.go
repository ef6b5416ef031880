// Package lineio frames serial traffic into timestamped events. A reader
// goroutine per port pulls received bytes through the driver's blocking
// helpers and publishes them on a shared bounded queue, either as raw
// chunks or accumulated into lines with an idle flush. Consumers that
// fall behind lose events rather than stall the reader.
package lineio

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"

	"usartio-go/x/mathx"
	"usartio-go/x/timex"
)

var (
	ErrNilPort = errors.New("lineio_nil_port")
	ErrBadMode = errors.New("lineio_bad_mode")
)

// Port is the driver surface a reader pumps. *usart.Driver satisfies it.
type Port interface {
	WriteByte(b byte) error
	Write(p []byte) (int, error)

	Buffered() int
	Read(p []byte) (int, error)
	Readable() <-chan struct{}
	RecvSomeContext(ctx context.Context, p []byte) (int, error)
}

// Event is one framed unit of traffic.
type Event struct {
	Name string // port name the reader was registered with
	Dir  string // "rx" | "tx"
	Data []byte
	TS   time.Time
}

// ReaderCfg configures one registered reader.
type ReaderCfg struct {
	Name      string
	Port      Port
	Mode      string        // "bytes" (default) | "lines"
	MaxFrame  int           // clamped to 16..256
	IdleFlush time.Duration // lines mode: flush a partial line after this idle gap, clamped to 0..2s
}

// Worker fans framed events from any number of registered readers into
// one queue.
type Worker struct {
	outQ  chan Event
	drops atomic.Uint64
}

// New builds a worker with the given event queue depth; depths below one
// get the default of 64.
func New(outBuf int) *Worker {
	if outBuf <= 0 {
		outBuf = 64
	}
	return &Worker{outQ: make(chan Event, outBuf)}
}

// Events returns the shared event queue.
func (w *Worker) Events() <-chan Event { return w.outQ }

// Drops reports how many events were discarded against a full queue.
func (w *Worker) Drops() uint64 { return w.drops.Load() }

func (w *Worker) publish(ev Event) {
	select {
	case w.outQ <- ev:
	default:
		w.drops.Inc() // consumer too slow; readers never stall
	}
}

// Register starts a reader goroutine for a port and returns its cancel.
// The reader stops when ctx is done or cancel is called.
func (w *Worker) Register(ctx context.Context, cfg ReaderCfg) (func(), error) {
	if cfg.Port == nil {
		return nil, ErrNilPort
	}
	switch cfg.Mode {
	case "", "bytes", "lines":
	default:
		return nil, ErrBadMode
	}
	lines := cfg.Mode == "lines"
	max := mathx.Clamp(cfg.MaxFrame, 16, 256)
	idle := mathx.Clamp(cfg.IdleFlush, 0, 2*time.Second)
	cctx, cancel := context.WithCancel(ctx)

	go func() {
		buf := make([]byte, max)
		var line []byte

		timer := time.NewTimer(time.Hour)
		if !timer.Stop() {
			timex.DrainTimer(timer)
		}

		flush := func(now time.Time) {
			if len(line) == 0 {
				return
			}
			payload := append([]byte(nil), line...)
			line = line[:0]
			w.publish(Event{Name: cfg.Name, Dir: "rx", Data: payload, TS: now})
		}

		for {
			// Arm the idle flush only while a partial line is held.
			if lines && len(line) > 0 && idle > 0 {
				timex.ResetTimer(timer, idle)
			} else {
				timex.ResetTimer(timer, time.Hour)
			}
			select {
			case <-cctx.Done():
				return
			case <-timer.C:
				flush(time.Now())
			case <-cfg.Port.Readable():
				// Bound the blocking wait so shutdown stays prompt.
				rctx, rcancel := context.WithTimeout(cctx, 250*time.Millisecond)
				n, _ := cfg.Port.RecvSomeContext(rctx, buf)
				rcancel()
				if n <= 0 {
					continue
				}
				now := time.Now()
				if !lines {
					payload := append([]byte(nil), buf[:n]...)
					w.publish(Event{Name: cfg.Name, Dir: "rx", Data: payload, TS: now})
					continue
				}
				// CR is ignored, LF terminates; overlong lines keep their
				// first max bytes.
				for i := 0; i < n; i++ {
					switch b := buf[i]; b {
					case '\n':
						flush(now)
					case '\r':
					default:
						if len(line) < max {
							line = append(line, b)
						}
					}
				}
			}
		}
	}()

	return cancel, nil
}

// EmitTX publishes a transmit echo for data the caller wrote to a port.
func (w *Worker) EmitTX(name string, data []byte) {
	p := append([]byte(nil), data...)
	w.publish(Event{Name: name, Dir: "tx", Data: p, TS: time.Now()})
}
