// Package strategy
package strategy

import (
	"errors"
	"fmt"
	"math"
)

// MaxLegs bounds the number of partial entries a cycle may accumulate.
const MaxLegs = 20

// ErrInvalidConfig is wrapped by every validation failure so callers can
// distinguish configuration errors from simulation errors.
var ErrInvalidConfig = errors.New("invalid strategy config")

// PolicyKind selects how a cycle is force-closed when the profit target
// is never reached.
type PolicyKind string

const (
	// ExitOnExpiry closes the position on the bar whose date reaches the
	// contract expiry date carried by the bar series.
	ExitOnExpiry PolicyKind = "expiry"
	// ExitOnTimeLimit closes the position once a fixed number of calendar
	// days has passed since the Leg 1 entry.
	ExitOnTimeLimit PolicyKind = "time-limit"
)

// ExitPolicy is the forced-exit rule applied when a cycle outlives its
// profit target.
type ExitPolicy struct {
	Kind          PolicyKind `yaml:"kind" json:"kind"`
	TimeLimitDays int        `yaml:"time_limit_days" json:"time_limit_days"`
}

// Config holds the immutable simulation parameters for one strategy run.
// Validate once at construction; the simulator trusts it afterwards.
type Config struct {
	// LotSizes holds the quantity bought by each leg; its length is the
	// leg count.
	LotSizes []int `yaml:"lot_sizes" json:"lot_sizes"`
	// GapPercents holds the per-leg drop (in percent) below the running
	// average / previous close that triggers the leg. The first entry is
	// conventionally 0: Leg 1 has no gap trigger.
	GapPercents []float64 `yaml:"gap_percents" json:"gap_percents"`
	// ProfitTargetPercent is the percent above the running average at
	// which the whole position is sold.
	ProfitTargetPercent float64 `yaml:"profit_target_percent" json:"profit_target_percent"`
	// Policy is the forced-exit rule (expiry date or calendar time limit).
	Policy ExitPolicy `yaml:"exit_policy" json:"exit_policy"`
	// RestartOffset is added to a cycle's exit price to seed the next
	// cycle's Leg 1 entry in continuous mode.
	RestartOffset float64 `yaml:"restart_offset" json:"restart_offset"`
	// GapRoundTo, when positive, rounds each gap offset up to the nearest
	// multiple of this many price points before it is subtracted. Zero
	// disables rounding and uses the plain percentage offset.
	GapRoundTo float64 `yaml:"gap_round_to" json:"gap_round_to"`
}

// DefaultConfig returns the canonical five-leg parameter set.
func DefaultConfig() Config {
	return Config{
		LotSizes:            []int{6, 4, 6, 6, 6},
		GapPercents:         []float64{0, 1.0, 1.5, 2.0, 2.5},
		ProfitTargetPercent: 1.0,
		Policy:              ExitPolicy{Kind: ExitOnExpiry},
		RestartOffset:       5,
	}
}

// LegCount returns the maximum number of legs this configuration allows.
func (c Config) LegCount() int { return len(c.LotSizes) }

// Validate checks the configuration once, before any simulation.
func (c Config) Validate() error {
	n := len(c.LotSizes)
	if n < 1 || n > MaxLegs {
		return fmt.Errorf("%w: leg count must be 1..%d, got %d", ErrInvalidConfig, MaxLegs, n)
	}
	if len(c.GapPercents) != n {
		return fmt.Errorf("%w: gap percents length %d does not match leg count %d",
			ErrInvalidConfig, len(c.GapPercents), n)
	}
	for i, lot := range c.LotSizes {
		if lot <= 0 {
			return fmt.Errorf("%w: lot size for leg %d must be positive, got %d", ErrInvalidConfig, i+1, lot)
		}
	}
	for i, gap := range c.GapPercents {
		if gap < 0 {
			return fmt.Errorf("%w: gap percent for leg %d cannot be negative, got %v", ErrInvalidConfig, i+1, gap)
		}
	}
	if c.ProfitTargetPercent <= 0 {
		return fmt.Errorf("%w: profit target percent must be positive, got %v", ErrInvalidConfig, c.ProfitTargetPercent)
	}
	switch c.Policy.Kind {
	case ExitOnExpiry:
	case ExitOnTimeLimit:
		if c.Policy.TimeLimitDays <= 0 {
			return fmt.Errorf("%w: time limit days must be positive, got %d", ErrInvalidConfig, c.Policy.TimeLimitDays)
		}
	default:
		return fmt.Errorf("%w: unknown exit policy %q", ErrInvalidConfig, c.Policy.Kind)
	}
	if c.RestartOffset < 0 {
		return fmt.Errorf("%w: restart offset cannot be negative, got %v", ErrInvalidConfig, c.RestartOffset)
	}
	if c.GapRoundTo < 0 {
		return fmt.Errorf("%w: gap rounding cannot be negative, got %v", ErrInvalidConfig, c.GapRoundTo)
	}
	return nil
}

// TargetPrice returns the profit-target exit price for a given running
// average price.
func (c Config) TargetPrice(avgPrice float64) float64 {
	return avgPrice * (1 + c.ProfitTargetPercent/100)
}

// TriggerPrice returns the limit price that fills leg (zero-based index)
// given the current running average and the previous bar's close. The
// trigger is the lower of the two gap offsets so a leg never fills above
// either reference.
func (c Config) TriggerPrice(leg int, avgPrice, prevClose float64) float64 {
	gap := c.GapPercents[leg]
	fromAvg := avgPrice - c.gapOffset(avgPrice, gap)
	fromClose := prevClose - c.gapOffset(prevClose, gap)
	return math.Min(fromAvg, fromClose)
}

func (c Config) gapOffset(price, gapPercent float64) float64 {
	off := price * gapPercent / 100
	if c.GapRoundTo > 0 {
		off = math.Ceil(off/c.GapRoundTo) * c.GapRoundTo
	}
	return off
}
