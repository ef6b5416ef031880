package lineio

import (
	"context"
	"sync"
	"testing"
	"time"

	"usartio-go/hw"
	"usartio-go/usart"
)

var _ Port = (*usart.Driver)(nil)

// ---- fake port ----

type fakePort struct {
	mu sync.Mutex
	rx []byte
	rd chan struct{}
}

func newFakePort() *fakePort { return &fakePort{rd: make(chan struct{}, 1)} }

func (f *fakePort) inject(b []byte) {
	f.mu.Lock()
	f.rx = append(f.rx, b...)
	f.mu.Unlock()
	select {
	case f.rd <- struct{}{}:
	default:
	}
}

func (f *fakePort) WriteByte(byte) error        { return nil }
func (f *fakePort) Write(p []byte) (int, error) { return len(p), nil }

func (f *fakePort) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rx)
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakePort) Readable() <-chan struct{} { return f.rd }

func (f *fakePort) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	if f.Buffered() > 0 {
		return f.Read(p)
	}
	select {
	case <-f.rd:
		return f.Read(p)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// ---- helpers ----

func recvEvent(t *testing.T, ch <-chan Event, d time.Duration) (Event, bool) {
	t.Helper()
	select {
	case ev := <-ch:
		return ev, true
	case <-time.After(d):
		return Event{}, false
	}
}

func waitUntil(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// ---- tests ----

func TestBytesModeEmitsChunks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newFakePort()
	w := New(8)
	stop, err := w.Register(ctx, ReaderCfg{Name: "u1", Port: p, Mode: "bytes", MaxFrame: 16})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()

	p.inject([]byte("abc"))
	ev, ok := recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("timeout waiting for rx")
	}
	if ev.Name != "u1" || ev.Dir != "rx" {
		t.Errorf("unexpected meta: %+v", ev)
	}
	if string(ev.Data) != "abc" {
		t.Errorf("data = %q", ev.Data)
	}
	if ev.TS.IsZero() {
		t.Error("timestamp not set")
	}

	p.inject([]byte("xyz123"))
	ev2, ok := recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("timeout waiting for rx 2")
	}
	if string(ev2.Data) != "xyz123" {
		t.Errorf("data 2 = %q", ev2.Data)
	}
}

func TestLinesModeSplitsAndIdleFlushes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newFakePort()
	w := New(8)
	stop, err := w.Register(ctx, ReaderCfg{
		Name:      "u2",
		Port:      p,
		Mode:      "lines",
		MaxFrame:  32,
		IdleFlush: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()

	p.inject([]byte("a"))
	ev, ok := recvEvent(t, w.Events(), 300*time.Millisecond)
	if !ok {
		t.Fatal("idle flush timeout")
	}
	if got := string(ev.Data); got != "a" {
		t.Errorf("idle flush got %q", got)
	}

	p.inject([]byte("hi\r\nthere\n"))
	ev, ok = recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("line 1 timeout")
	}
	if got := string(ev.Data); got != "hi" {
		t.Errorf("line 1 = %q", got)
	}
	ev, ok = recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("line 2 timeout")
	}
	if got := string(ev.Data); got != "there" {
		t.Errorf("line 2 = %q", got)
	}

	p.inject([]byte("z"))
	ev, ok = recvEvent(t, w.Events(), 300*time.Millisecond)
	if !ok {
		t.Fatal("idle flush 2 timeout")
	}
	if got := string(ev.Data); got != "z" {
		t.Errorf("idle flush 2 = %q", got)
	}
}

func TestOverlongLineKeepsFirstMaxBytes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newFakePort()
	w := New(8)
	// MaxFrame below the floor clamps up to 16.
	stop, err := w.Register(ctx, ReaderCfg{Name: "u3", Port: p, Mode: "lines", MaxFrame: 8})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()

	p.inject([]byte("ABCDEFGHIJKLMNOPQRST"))
	p.inject([]byte("\n"))
	ev, ok := recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("timeout")
	}
	if got := string(ev.Data); got != "ABCDEFGHIJKLMNOP" {
		t.Errorf("line = %q, want first 16 bytes", got)
	}
}

func TestSlowConsumerDropsAndCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newFakePort()
	w := New(1)
	stop, err := w.Register(ctx, ReaderCfg{Name: "u4", Port: p, Mode: "bytes", MaxFrame: 16})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()

	p.inject([]byte("x"))
	if !waitUntil(t, time.Second, func() bool { return len(w.Events()) == 1 }) {
		t.Fatal("first event never queued")
	}
	p.inject([]byte("y"))
	if !waitUntil(t, time.Second, func() bool { return w.Drops() == 1 }) {
		t.Fatalf("Drops = %d, want 1", w.Drops())
	}
	ev, _ := recvEvent(t, w.Events(), time.Second)
	if string(ev.Data) != "x" {
		t.Errorf("kept event = %q, want the first", ev.Data)
	}
}

func TestEmitTXCopiesPayload(t *testing.T) {
	w := New(4)
	src := []byte("echo")
	w.EmitTX("u5", src)
	src[0] = '!'

	ev, ok := recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("timeout")
	}
	if ev.Dir != "tx" || ev.Name != "u5" {
		t.Errorf("meta: %+v", ev)
	}
	if string(ev.Data) != "echo" {
		t.Errorf("payload aliased caller memory: %q", ev.Data)
	}
}

func TestRegisterValidation(t *testing.T) {
	w := New(4)
	if _, err := w.Register(context.Background(), ReaderCfg{Name: "x"}); err != ErrNilPort {
		t.Errorf("nil port: %v, want ErrNilPort", err)
	}
	if _, err := w.Register(context.Background(), ReaderCfg{Name: "x", Port: newFakePort(), Mode: "frames"}); err != ErrBadMode {
		t.Errorf("bad mode: %v, want ErrBadMode", err)
	}
}

func TestCancelStopsReader(t *testing.T) {
	p := newFakePort()
	w := New(4)
	stop, err := w.Register(context.Background(), ReaderCfg{Name: "u6", Port: p, Mode: "bytes"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	stop()
	time.Sleep(20 * time.Millisecond) // let the reader observe the cancel

	p.inject([]byte("late"))
	if _, ok := recvEvent(t, w.Events(), 100*time.Millisecond); ok {
		t.Error("event published after cancel")
	}
}

func TestRealDriverLoopbackLines(t *testing.T) {
	vt := hw.NewController()
	tr := hw.NewTransceiver(vt)
	drv := usart.New(tr.Bank(), vt, usart.Config{})
	tr.OnTransmit(tr.ReceiveByte)
	if err := drv.Init(9600, usart.Mode8N1|usart.ModeRXEN|usart.ModeTXEN); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := New(8)
	stop, err := w.Register(ctx, ReaderCfg{Name: "loop", Port: drv, Mode: "lines", MaxFrame: 64})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer stop()

	if _, err := drv.Write([]byte("ping\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	ev, ok := recvEvent(t, w.Events(), time.Second)
	if !ok {
		t.Fatal("framed line never arrived")
	}
	if string(ev.Data) != "ping" || ev.Name != "loop" || ev.Dir != "rx" {
		t.Errorf("event = %+v", ev)
	}
}
