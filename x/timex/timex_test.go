package timex

import (
	"testing"
	"time"
)

func TestPeriodFromHz(t *testing.T) {
	if got := PeriodFromHz(1000); got != 1_000_000 {
		t.Fatalf("1 kHz period = %d ns", got)
	}
	if got := PeriodFromHz(9600); got != 104166 {
		t.Fatalf("9600 Hz period = %d ns", got)
	}
	if got := PeriodFromHz(0); got != 1_000_000_000 {
		t.Fatalf("0 Hz period = %d ns", got)
	}
}

func TestResetAndDrainTimer(t *testing.T) {
	tm := time.NewTimer(time.Hour)
	if !tm.Stop() {
		DrainTimer(tm)
	}
	ResetTimer(tm, time.Millisecond)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after ResetTimer")
	}
	// A fired timer re-arms without a stale tick left behind.
	ResetTimer(tm, -1)
	select {
	case <-tm.C:
	case <-time.After(50 * time.Millisecond):
		t.Fatal("timer did not fire after negative ResetTimer")
	}
}
