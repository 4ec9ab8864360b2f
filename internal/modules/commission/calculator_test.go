package commission

import (
	"errors"
	"math"
	"testing"
)

func TestSplitObservedRate(t *testing.T) {
	c := NewCalculator(20)
	b, err := c.Split(14500, -1)
	if err != nil {
		t.Fatalf("Split error: %v", err)
	}
	if b.PlatformFee != 2900 {
		t.Errorf("platform fee = %v, want 2900", b.PlatformFee)
	}
	if b.NetEarnings != 11600 {
		t.Errorf("net earnings = %v, want 11600", b.NetEarnings)
	}
	if b.FeePct != 20 {
		t.Errorf("fee pct snapshot = %v, want 20", b.FeePct)
	}
}

func TestSplitSumsToGross(t *testing.T) {
	c := NewCalculator(20)
	cases := []struct{ gross, pct float64 }{
		{0, 0}, {0.01, 20}, {99.99, 33.3}, {14500, 20},
		{1234.56, 7.5}, {100000, 100}, {250, 0},
	}
	for _, tc := range cases {
		b, err := c.Split(tc.gross, tc.pct)
		if err != nil {
			t.Fatalf("Split(%v,%v) error: %v", tc.gross, tc.pct, err)
		}
		if diff := math.Abs(b.PlatformFee + b.NetEarnings - tc.gross); diff > 0.01 {
			t.Errorf("Split(%v,%v): fee %v + net %v != gross (diff %v)",
				tc.gross, tc.pct, b.PlatformFee, b.NetEarnings, diff)
		}
	}
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	c := NewCalculator(20)
	if _, err := c.Split(-1, 20); !errors.Is(err, ErrValidation) {
		t.Errorf("negative gross: got %v, want ErrValidation", err)
	}
	if _, err := c.Split(100, 101); !errors.Is(err, ErrValidation) {
		t.Errorf("pct > 100: got %v, want ErrValidation", err)
	}
}

func TestNewCalculatorClampsDefault(t *testing.T) {
	c := NewCalculator(150)
	if c.DefaultPct() != DefaultPlatformFeePct {
		t.Errorf("default pct = %v, want %v", c.DefaultPct(), DefaultPlatformFeePct)
	}
}
