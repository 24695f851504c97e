// Package backtest
package backtest

import (
	"errors"
	"time"

	"github.com/jollygold/jollygold/internal/bar"
	"github.com/jollygold/jollygold/internal/cycle"
	"github.com/jollygold/jollygold/internal/strategy"
)

// EquityPoint is one completed cycle on the equity curve (continuous
// mode only). Points are ordered by cycle sequence and owned by the
// driver; the simulator never touches them.
type EquityPoint struct {
	Date              time.Time `json:"date"`
	CumulativeCapital float64   `json:"cumulative_capital"`
	CyclePnl          float64   `json:"cycle_pnl"`
	IsProfit          bool      `json:"is_profit"`
}

// Result aggregates the cycles and equity curve of a backtest run.
type Result struct {
	Cycles         []cycle.Cycle
	Equity         []EquityPoint
	InitialCapital float64
	FinalCapital   float64
	Summary        Summary
}

// Driver runs the cycle simulator once (single mode) or back-to-back
// (continuous mode), feeding each cycle's exit into the next cycle's
// Leg 1 entry.
type Driver struct {
	series         *bar.Series
	cfg            strategy.Config
	sim            *cycle.Simulator
	initialCapital float64
}

// NewDriver validates the configuration and prepares a driver over the
// given series.
func NewDriver(series *bar.Series, cfg strategy.Config, initialCapital float64) (*Driver, error) {
	sim, err := cycle.NewSimulator(series, cfg)
	if err != nil {
		return nil, err
	}
	return &Driver{
		series:         series,
		cfg:            cfg,
		sim:            sim,
		initialCapital: initialCapital,
	}, nil
}

// RunSingle simulates exactly one cycle starting at the first bar on or
// after startDate, with Leg 1 at the start bar's high.
func (d *Driver) RunSingle(startDate time.Time) (cycle.Cycle, error) {
	i, ok := d.series.Seek(startDate)
	if !ok {
		return cycle.Cycle{}, &cycle.InvalidStartError{Date: startDate, Reason: "no bars on or after start date"}
	}
	return d.sim.Run(d.series.At(i).Date, nil)
}

// RunContinuous chains cycles from startDate until the series is
// exhausted, a cycle cannot be started, or a new cycle would begin after
// endDate (zero endDate means the series end). Each follow-up cycle
// seeds Leg 1 at the previous exit price plus the restart offset and
// starts strictly after the previous exit bar. Completed cycles are
// always returned, even when the run stops early.
func (d *Driver) RunContinuous(startDate, endDate time.Time) (Result, error) {
	res := Result{InitialCapital: d.initialCapital}
	capital := d.initialCapital

	i, ok := d.series.Seek(startDate)
	if !ok {
		return res, &cycle.InvalidStartError{Date: startDate, Reason: "no bars on or after start date"}
	}

	var override *float64
	for i < d.series.Len() {
		startBar := d.series.At(i)
		if !endDate.IsZero() && startBar.Date.After(bar.Day(endDate)) {
			break
		}

		c, err := d.sim.Run(startBar.Date, override)
		if err != nil {
			// A start that leaves no room to simulate ends the run; the
			// cycles completed so far stand.
			var ise *cycle.InvalidStartError
			if errors.As(err, &ise) {
				break
			}
			return res, err
		}

		res.Cycles = append(res.Cycles, c)
		if !c.Complete() {
			break
		}

		pnl := c.Exit.RealizedPnl
		capital += pnl
		res.Equity = append(res.Equity, EquityPoint{
			Date:              c.Exit.Date,
			CumulativeCapital: capital,
			CyclePnl:          pnl,
			IsProfit:          pnl > 0,
		})

		next := c.Exit.ExitPrice + d.cfg.RestartOffset
		override = &next
		i = c.NextIndex + 1
	}

	res.FinalCapital = capital
	res.Summary = Summarize(res.Cycles, res.Equity)
	return res, nil
}
