package usart

// The mode word passed to Init packs the frame configuration:
//
//	bits 14..15  operating mode
//	bit  13      ModeTXEN
//	bit  12      ModeRXEN
//	bit  11      frame-size high bit
//	bits 9..10   frame-size low bits
//	bit  8       stop-bit count
//	bit  7       clock polarity
//	bits 5..6    parity mode
//
// The sub-field positions are fixed contract; the helpers below compose
// them.
const (
	ModeRXEN uint16 = 1 << 12 // receiver plus receive interrupt
	ModeTXEN uint16 = 1 << 13 // transmitter plus both transmit interrupts
)

// Operating modes.
const (
	OpAsync     uint16 = 0 << 14
	OpSync      uint16 = 1 << 14
	OpMasterSPI uint16 = 3 << 14
)

// ModePolarityInverted samples on the falling clock edge (synchronous
// modes only).
const ModePolarityInverted uint16 = 1 << 7

// Mode8N1 is the conventional default frame: 8 data bits, no parity, one
// stop bit, asynchronous.
const Mode8N1 uint16 = 3 << 9

// Parity selects the frame parity mode.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

// field returns the two-bit register encoding: none 00, even 10, odd 11.
func (p Parity) field() uint16 {
	switch p {
	case ParityEven:
		return 2
	case ParityOdd:
		return 3
	default:
		return 0
	}
}

// ModeParity places p in the mode word.
func ModeParity(p Parity) uint16 { return p.field() << 5 }

// ModeFrameSize encodes a character size of 5..9 data bits; out-of-range
// sizes clamp to the nearest supported one. The three-bit encoding is
// split across the word: 9-bit frames set the high bit as well.
func ModeFrameSize(bits uint8) uint16 {
	switch {
	case bits <= 5:
		return 0 << 9
	case bits >= 9:
		return 7 << 9
	default:
		return uint16(bits-5) << 9
	}
}

// ModeStopBits encodes one or two stop bits.
func ModeStopBits(n uint8) uint16 {
	if n >= 2 {
		return 1 << 8
	}
	return 0
}
