package usart

import "tinygo.org/x/drivers"

// DefaultBaud is programmed when Configure is handed a zero rate.
const DefaultBaud uint32 = 9600

// Configure puts the line in the conventional 8N1 frame at the given rate,
// both directions enabled. Zero selects DefaultBaud.
func (d *Driver) Configure(baud uint32) error {
	if baud == 0 {
		baud = DefaultBaud
	}
	return d.Init(baud, Mode8N1|ModeRXEN|ModeTXEN)
}

// Keeps the driver usable from code written against the generic interface
// (io.Reader, io.Writer, Buffered).
var _ drivers.UART = (*Driver)(nil)
