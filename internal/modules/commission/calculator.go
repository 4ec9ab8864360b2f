package commission

import (
	"errors"
	"fmt"
	"math"
)

// DefaultPlatformFeePct is the platform-wide commission applied when neither
// the caller nor the vendor tier overrides it.
const DefaultPlatformFeePct = 20.0

var ErrValidation = errors.New("validation error")

// Breakdown is the commission split for one gross amount. FeePct is a
// snapshot of the percentage in effect at calculation time; later changes to
// the platform rate must not alter records derived from this value.
type Breakdown struct {
	GrossAmount float64 `json:"gross_amount"`
	FeePct      float64 `json:"fee_pct"`
	PlatformFee float64 `json:"platform_fee"`
	NetEarnings float64 `json:"net_earnings"`
}

// Calculator computes platform fee / vendor net splits.
type Calculator struct {
	defaultPct float64
}

// NewCalculator builds a calculator with the given default percentage.
// Values outside [0,100] fall back to DefaultPlatformFeePct.
func NewCalculator(defaultPct float64) *Calculator {
	if defaultPct < 0 || defaultPct > 100 {
		defaultPct = DefaultPlatformFeePct
	}
	return &Calculator{defaultPct: defaultPct}
}

// DefaultPct returns the configured platform-wide percentage.
func (c *Calculator) DefaultPct() float64 { return c.defaultPct }

// Split computes the commission breakdown for a gross amount at the given
// percentage. Pass a negative pct to use the configured default.
func (c *Calculator) Split(gross, pct float64) (Breakdown, error) {
	if pct < 0 {
		pct = c.defaultPct
	}
	if gross < 0 {
		return Breakdown{}, fmt.Errorf("%w: gross amount must not be negative (got %.2f)", ErrValidation, gross)
	}
	if pct > 100 {
		return Breakdown{}, fmt.Errorf("%w: fee percentage must be within [0,100] (got %.2f)", ErrValidation, pct)
	}

	fee := round2(gross * pct / 100)
	return Breakdown{
		GrossAmount: gross,
		FeePct:      pct,
		PlatformFee: fee,
		NetEarnings: round2(gross - fee),
	}, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
