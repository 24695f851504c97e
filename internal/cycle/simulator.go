package cycle

import (
	"fmt"
	"time"

	"github.com/jollygold/jollygold/internal/bar"
	"github.com/jollygold/jollygold/internal/strategy"
)

// InvalidStartError reports a start date that cannot seed a cycle: it is
// absent from the series or leaves no bars to evaluate exit conditions.
type InvalidStartError struct {
	Date   time.Time
	Reason string
}

func (e *InvalidStartError) Error() string {
	return fmt.Sprintf("invalid cycle start %s: %s", e.Date.Format("2006-01-02"), e.Reason)
}

// Simulator runs trade cycles over a read-only bar series. It holds no
// mutable state between runs, so independent cycles may be simulated
// concurrently on the same series.
type Simulator struct {
	series *bar.Series
	cfg    strategy.Config
}

// NewSimulator validates the configuration and binds it to a series.
func NewSimulator(series *bar.Series, cfg strategy.Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Policy.Kind == strategy.ExitOnExpiry && !series.HasExpiry() {
		return nil, fmt.Errorf("%w: expiry exit policy requires an expiry date on every bar", strategy.ErrInvalidConfig)
	}
	return &Simulator{series: series, cfg: cfg}, nil
}

// Run simulates one cycle starting at startDate. entryOverride, when
// non-nil, fills Leg 1 at that price instead of the start bar's high
// (continuous mode carrying the previous exit forward). Each subsequent
// bar is evaluated in fixed priority order: profit target, forced exit,
// next-leg trigger. The profit target is checked first, so it wins over
// a forced exit or a pending leg trigger on the same bar.
func (s *Simulator) Run(startDate time.Time, entryOverride *float64) (Cycle, error) {
	idx, ok := s.series.Index(startDate)
	if !ok {
		return Cycle{}, &InvalidStartError{Date: startDate, Reason: "date not present in bar series"}
	}
	if idx >= s.series.Len()-1 {
		return Cycle{}, &InvalidStartError{Date: startDate, Reason: "no bars remain after start date"}
	}

	start := s.series.At(idx)
	first := LegFill{
		LegIndex: 1,
		Date:     start.Date,
		Quantity: s.cfg.LotSizes[0],
	}
	if entryOverride != nil {
		first.FillPrice = *entryOverride
		first.Reason = CarriedFromPreviousExit
	} else {
		first.FillPrice = start.High
		first.Reason = StartedAtHigh
	}
	first.RunningAverage = first.FillPrice

	c := Cycle{
		StartDate: start.Date,
		Legs:      []LegFill{first},
	}
	prevClose := start.Close

	for i := idx + 1; i < s.series.Len(); i++ {
		b := s.series.At(i)
		avg := averagePrice(c.Legs)
		qty := totalQuantity(c.Legs)

		// 1. Profit target
		target := s.cfg.TargetPrice(avg)
		if b.High >= target {
			c.Exit = &ExitFill{
				Date:         b.Date,
				ExitPrice:    target,
				Quantity:     qty,
				AveragePrice: avg,
				Reason:       ProfitTarget,
				RealizedPnl:  (target - avg) * float64(qty),
			}
			c.NextIndex = i
			return c, nil
		}

		// 2. Forced exit: expiry date or calendar time limit
		if forced, npnl, loss := s.forcedExit(b, c.StartDate); forced {
			exit := ExitFill{
				Date:         b.Date,
				Quantity:     qty,
				AveragePrice: avg,
			}
			if b.High >= avg {
				// The position could have been flattened at its average
				// price intraday: exit with zero profit and zero loss.
				exit.ExitPrice = avg
				exit.Reason = npnl
			} else {
				exit.ExitPrice = b.Close
				exit.Reason = loss
				exit.RealizedPnl = (b.Close - avg) * float64(qty)
			}
			c.Exit = &exit
			c.NextIndex = i
			return c, nil
		}

		// 3. Next-leg trigger
		if len(c.Legs) < s.cfg.LegCount() {
			leg := len(c.Legs)
			trigger := s.cfg.TriggerPrice(leg, avg, prevClose)
			if b.Low <= trigger {
				fill := LegFill{
					LegIndex:  leg + 1,
					Date:      b.Date,
					Quantity:  s.cfg.LotSizes[leg],
					FillPrice: trigger,
					Reason:    GapTriggerHit,
				}
				if b.Open < trigger {
					fill.FillPrice = b.Open
					fill.Reason = GapDownOpen
				}
				c.Legs = append(c.Legs, fill)
				c.Legs[len(c.Legs)-1].RunningAverage = averagePrice(c.Legs)
			}
		}

		prevClose = b.Close
		c.NextIndex = i
	}

	// Series exhausted with the cycle still open: reported as-is, never
	// coerced into a profit or loss.
	return c, nil
}

// forcedExit reports whether the bar triggers the configured forced-exit
// policy, along with the reasons to use for the NPNL and loss outcomes.
func (s *Simulator) forcedExit(b bar.PriceBar, entryDate time.Time) (bool, ExitReason, ExitReason) {
	switch s.cfg.Policy.Kind {
	case strategy.ExitOnExpiry:
		if !b.Expiry.IsZero() && !b.Date.Before(b.Expiry) {
			return true, ExpiryNoProfitNoLoss, ExpiryLoss
		}
	case strategy.ExitOnTimeLimit:
		days := int(b.Date.Sub(entryDate).Hours() / 24)
		if days >= s.cfg.Policy.TimeLimitDays {
			return true, TimeLimitNoProfitNoLoss, TimeLimitLoss
		}
	}
	return false, "", ""
}
