package usart

import "usartio-go/x/mathx"

// DefaultClock is the peripheral clock assumed when Config leaves it zero.
const DefaultClock uint32 = 16_000_000

// BaudSetting is the outcome of prescaler selection: the divisor to
// program and whether the double-speed (/8) factor won.
type BaudSetting struct {
	Divisor     uint32
	DoubleSpeed bool
}

// Factor returns the prescaler factor of the setting, 16 or 8.
func (b BaudSetting) Factor() uint32 {
	if b.DoubleSpeed {
		return 8
	}
	return 16
}

// Effective returns the rate the setting actually generates at clockHz.
func (b BaudSetting) Effective(clockHz uint32) uint32 {
	if b.Divisor == 0 {
		return 0
	}
	return mathx.RoundDiv(clockHz/b.Factor(), b.Divisor)
}

// SelectBaud picks the prescaler configuration for a requested rate. Both
// the /16 and the /8 factor are tried with round-half-up division; when
// both are feasible the smaller absolute quantization error wins, and /16
// is discarded only when /8 is strictly better, so exact ties keep /16.
// A factor whose divisor rounds to zero is infeasible; if both are, the
// rate cannot be generated from clockHz. A requested rate of zero yields
// zero divisors and fails the same way.
func SelectBaud(clockHz, baud uint32) (BaudSetting, error) {
	c16 := clockHz / 16
	c8 := clockHz / 8
	div16 := mathx.RoundDiv(c16, baud)
	div8 := mathx.RoundDiv(c8, baud)

	if div16 == 0 && div8 == 0 {
		return BaudSetting{}, ErrUnachievableBaud
	}
	if div16 != 0 && div8 != 0 {
		err16 := mathx.Abs(int64(c16)*int64(div16) - int64(baud))
		err8 := mathx.Abs(int64(c8)*int64(div8) - int64(baud))
		if err16 > err8 {
			div16 = 0
		}
	}
	if div16 != 0 {
		return BaudSetting{Divisor: div16}, nil
	}
	return BaudSetting{Divisor: div8, DoubleSpeed: true}, nil
}
