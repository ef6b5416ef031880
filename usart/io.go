package usart

import "context"

// Application-side io. One goroutine at a time may consume the receive
// side, and one may produce the transmit side; the handlers hold the
// opposite role on each queue.

// Buffered returns the number of received bytes waiting.
func (d *Driver) Buffered() int { return d.rx.Len() }

// ReadByte pops one received byte without blocking.
func (d *Driver) ReadByte() (byte, error) {
	b, ok := d.rx.TryPop()
	if !ok {
		return 0, ErrBufferEmpty
	}
	return b, nil
}

// Read drains up to len(p) received bytes without blocking. An empty
// queue reads zero bytes with no error.
func (d *Driver) Read(p []byte) (int, error) {
	return d.rx.ReadInto(p), nil
}

// WriteByte enqueues one byte for transmit.
func (d *Driver) WriteByte(b byte) error {
	if err := d.tx.TryPush(b); err != nil {
		return ErrQueueFull
	}
	return nil
}

// Write enqueues as much of p as fits. A full queue reports the partial
// count with ErrQueueFull; retry, or use WriteContext for backpressure.
func (d *Driver) Write(p []byte) (int, error) {
	n := d.tx.WriteFrom(p)
	if n < len(p) {
		return n, ErrQueueFull
	}
	return n, nil
}

// Readable exposes a coalesced readiness signal suitable for select.
func (d *Driver) Readable() <-chan struct{} { return d.rx.Readable() }

// WaitReadableContext blocks until received data is available or ctx is
// done.
func (d *Driver) WaitReadableContext(ctx context.Context) error {
	for {
		if d.rx.Len() > 0 {
			return nil
		}
		select {
		case <-d.rx.Readable():
			// re-check; a coalesced token can outlive the data it signalled
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// RecvSomeContext blocks until at least one received byte is available,
// then drains up to len(p).
func (d *Driver) RecvSomeContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if n := d.rx.ReadInto(p); n > 0 {
		return n, nil
	}
	for {
		select {
		case <-d.rx.Readable():
			if n := d.rx.ReadInto(p); n > 0 {
				return n, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// RecvByteContext blocks for a single received byte or until ctx is done.
func (d *Driver) RecvByteContext(ctx context.Context) (byte, error) {
	if b, ok := d.rx.TryPop(); ok {
		return b, nil
	}
	for {
		select {
		case <-d.rx.Readable():
			if b, ok := d.rx.TryPop(); ok {
				return b, nil
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// WriteContext enqueues all of p, waiting for transmit-queue space as
// needed until ctx is done. It returns the count enqueued either way;
// enqueued does not mean transmitted.
func (d *Driver) WriteContext(ctx context.Context, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		total += d.tx.WriteFrom(p[total:])
		if total == len(p) {
			break
		}
		select {
		case <-d.tx.Writable():
			// re-check; WriteFrom tolerates a token with no space behind it
		case <-ctx.Done():
			return total, ctx.Err()
		}
	}
	return total, nil
}
