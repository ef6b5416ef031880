package mathx

import "golang.org/x/exp/constraints"

// RoundDiv returns (a + b/2) / b, integer division rounded half-up.
// b == 0 returns 0 rather than faulting, so callers probing several
// divider factors can treat "no factor" and "zero input" uniformly.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}
