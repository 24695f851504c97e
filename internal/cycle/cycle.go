// Package cycle implements the multi-leg position-averaging cycle
// simulator: a state machine that opens partial entries on gap triggers,
// tracks the volume-weighted average price, and closes the position on a
// profit target or a forced expiry/time-limit exit.
package cycle

import (
	"time"
)

// TriggerReason records why a leg was filled.
type TriggerReason string

const (
	// StartedAtHigh fills Leg 1 at the high of the start bar.
	StartedAtHigh TriggerReason = "started_at_high"
	// GapTriggerHit fills a leg exactly at its computed trigger price.
	GapTriggerHit TriggerReason = "gap_trigger_hit"
	// GapDownOpen fills a leg at the open when the bar gapped below the
	// trigger, a better price for the buyer.
	GapDownOpen TriggerReason = "gap_down_open"
	// CarriedFromPreviousExit seeds Leg 1 at the previous cycle's exit
	// price plus the restart offset (continuous mode only).
	CarriedFromPreviousExit TriggerReason = "carried_from_previous_exit"
)

// ExitReason records how a cycle terminated.
type ExitReason string

const (
	ProfitTarget            ExitReason = "profit_target"
	ExpiryNoProfitNoLoss    ExitReason = "expiry_npnl"
	ExpiryLoss              ExitReason = "expiry_loss"
	TimeLimitNoProfitNoLoss ExitReason = "time_limit_npnl"
	TimeLimitLoss           ExitReason = "time_limit_loss"
	// SeriesExhausted marks an incomplete cycle: the bar series ended
	// before any exit condition fired. No exit is fabricated.
	SeriesExhausted ExitReason = "series_exhausted"
)

// LegFill is one executed partial entry.
type LegFill struct {
	LegIndex       int           `json:"leg_index"` // 1-based
	Date           time.Time     `json:"date"`
	Quantity       int           `json:"quantity"`
	FillPrice      float64       `json:"fill_price"`
	RunningAverage float64       `json:"running_average"`
	Reason         TriggerReason `json:"reason"`
}

// ExitFill is the single closing trade of a cycle.
type ExitFill struct {
	Date         time.Time  `json:"date"`
	ExitPrice    float64    `json:"exit_price"`
	Quantity     int        `json:"quantity"`
	AveragePrice float64    `json:"average_price"`
	Reason       ExitReason `json:"reason"`
	RealizedPnl  float64    `json:"realized_pnl"`
}

// Cycle is one simulated trade cycle: an ordered sequence of leg fills
// terminated by at most one exit fill. The simulator appends fills in
// chronological bar order; a cycle is immutable once returned.
type Cycle struct {
	StartDate time.Time `json:"start_date"`
	Legs      []LegFill `json:"legs"`
	// Exit is nil when the series was exhausted before an exit condition
	// fired.
	Exit *ExitFill `json:"exit,omitempty"`
	// NextIndex is the series position of the bar that produced the exit
	// (or the last scanned bar when exhausted). The backtest driver
	// advances strictly past it before starting the next cycle.
	NextIndex int `json:"-"`
}

// Complete reports whether the cycle reached a terminal exit.
func (c Cycle) Complete() bool { return c.Exit != nil }

// Outcome returns the terminal reason, SeriesExhausted for incomplete
// cycles.
func (c Cycle) Outcome() ExitReason {
	if c.Exit == nil {
		return SeriesExhausted
	}
	return c.Exit.Reason
}

// TotalQuantity returns the position size accumulated by all filled legs.
func (c Cycle) TotalQuantity() int {
	return totalQuantity(c.Legs)
}

// AveragePrice returns the volume-weighted average price over all filled
// legs.
func (c Cycle) AveragePrice() float64 {
	return averagePrice(c.Legs)
}

// RealizedPnl returns the realized profit of a completed cycle, zero for
// an incomplete one.
func (c Cycle) RealizedPnl() float64 {
	if c.Exit == nil {
		return 0
	}
	return c.Exit.RealizedPnl
}

func totalQuantity(legs []LegFill) int {
	total := 0
	for _, l := range legs {
		total += l.Quantity
	}
	return total
}

// averagePrice recomputes the quantity-weighted mean from scratch rather
// than accumulating incrementally, so the average cannot drift across
// many legs.
func averagePrice(legs []LegFill) float64 {
	if len(legs) == 0 {
		return 0
	}
	cost := 0.0
	qty := 0
	for _, l := range legs {
		cost += float64(l.Quantity) * l.FillPrice
		qty += l.Quantity
	}
	return cost / float64(qty)
}
