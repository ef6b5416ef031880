package hw

// Bank is the peripheral's register block: one instance per port,
// exclusively owned by one driver for the peripheral's lifetime.
type Bank struct {
	Status  Reg // completion/error flags and the double-speed bit
	Control Reg // enables, interrupt masks, frame-size high bit
	Frame   Reg // operating mode, parity, stop bits, frame-size low bits, polarity
	BaudDiv Reg // baud-rate divisor
	Data    Reg // shared receive/transmit window
}

// Status register bits.
const (
	StatusRxComplete  uint32 = 1 << 7 // received byte waiting in the data window
	StatusTxComplete  uint32 = 1 << 6 // shift register drained
	StatusDataEmpty   uint32 = 1 << 5 // holding register can accept a byte
	StatusFrameError  uint32 = 1 << 4
	StatusOverrun     uint32 = 1 << 3
	StatusParityError uint32 = 1 << 2
	StatusDoubleSpeed uint32 = 1 << 1 // /8 prescaler selected
)

// Control register bits.
const (
	CtrlRxIntEnable    uint32 = 1 << 7
	CtrlTxIntEnable    uint32 = 1 << 6
	CtrlEmptyIntEnable uint32 = 1 << 5
	CtrlRxEnable       uint32 = 1 << 4
	CtrlTxEnable       uint32 = 1 << 3
	CtrlSizeHigh       uint32 = 1 << 2 // high bit of the 3-bit frame size
)

// Frame register field positions. The low two frame-size bits live here;
// the third lives in Control (CtrlSizeHigh).
const (
	FrameOpModeShift   = 6 // 2 bits
	FrameParityShift   = 4 // 2 bits
	FrameStopShift     = 3 // 1 bit
	FrameSizeShift     = 1 // 2 bits
	FramePolarityShift = 0 // 1 bit
)
