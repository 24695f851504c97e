// Package journal flattens simulation results into ledger rows for
// console rendering, CSV export, and persistence.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/jollygold/jollygold/internal/backtest"
	"github.com/jollygold/jollygold/internal/cycle"
)

// Event represents a journaled event.
type Event struct {
	Time        time.Time
	Type        string // e.g., "cycle", "leg", "error", etc.
	Description string
	Data        map[string]any
}

// Journaler interface for journaling events.
type Journaler interface {
	LogEvent(ctx context.Context, event Event) error
	GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]Event, error)
}

const dateLayout = "2006-01-02"

// LedgerRow is one flattened fill of a cycle's ledger.
type LedgerRow struct {
	Cycle        int     `csv:"cycle"`
	Date         string  `csv:"date"`
	Action       string  `csv:"action"`
	Leg          string  `csv:"leg"`
	Quantity     int     `csv:"qty"`
	Price        float64 `csv:"price"`
	AveragePrice float64 `csv:"avg_price"`
	Status       string  `csv:"status"`
	Pnl          float64 `csv:"pnl"`
}

// EquityRow is one equity-curve point in exportable form.
type EquityRow struct {
	Cycle             int     `csv:"cycle"`
	Date              string  `csv:"date"`
	CyclePnl          float64 `csv:"cycle_pnl"`
	CumulativeCapital float64 `csv:"cumulative_capital"`
	IsProfit          bool    `csv:"is_profit"`
}

// FlattenCycle converts one cycle into ledger rows: one BUY row per leg
// fill and one SELL row for the exit when the cycle completed. seq is
// the 1-based cycle number within the run.
func FlattenCycle(seq int, c cycle.Cycle) []LedgerRow {
	rows := make([]LedgerRow, 0, len(c.Legs)+1)
	for _, l := range c.Legs {
		rows = append(rows, LedgerRow{
			Cycle:        seq,
			Date:         l.Date.Format(dateLayout),
			Action:       "BUY",
			Leg:          fmt.Sprintf("Leg %d", l.LegIndex),
			Quantity:     l.Quantity,
			Price:        l.FillPrice,
			AveragePrice: l.RunningAverage,
			Status:       triggerStatus(l.Reason),
		})
	}
	if c.Exit != nil {
		rows = append(rows, LedgerRow{
			Cycle:        seq,
			Date:         c.Exit.Date.Format(dateLayout),
			Action:       "SELL",
			Leg:          exitLeg(c.Exit.Reason),
			Quantity:     c.Exit.Quantity,
			Price:        c.Exit.ExitPrice,
			AveragePrice: c.Exit.AveragePrice,
			Status:       ExitStatus(c.Exit.Reason),
			Pnl:          c.Exit.RealizedPnl,
		})
	}
	return rows
}

// FlattenCycles flattens a run's cycles into one grand ledger.
func FlattenCycles(cycles []cycle.Cycle) []LedgerRow {
	var rows []LedgerRow
	for i, c := range cycles {
		rows = append(rows, FlattenCycle(i+1, c)...)
	}
	return rows
}

// FlattenEquity converts the equity curve into exportable rows.
func FlattenEquity(points []backtest.EquityPoint) []EquityRow {
	rows := make([]EquityRow, len(points))
	for i, p := range points {
		rows[i] = EquityRow{
			Cycle:             i + 1,
			Date:              p.Date.Format(dateLayout),
			CyclePnl:          p.CyclePnl,
			CumulativeCapital: p.CumulativeCapital,
			IsProfit:          p.IsProfit,
		}
	}
	return rows
}

func triggerStatus(r cycle.TriggerReason) string {
	switch r {
	case cycle.StartedAtHigh:
		return "Started at High"
	case cycle.GapTriggerHit:
		return "Limit Hit"
	case cycle.GapDownOpen:
		return "Gap Down Entry"
	case cycle.CarriedFromPreviousExit:
		return "Cycle Restart"
	default:
		return string(r)
	}
}

// ExitStatus renders an exit reason in ledger form.
func ExitStatus(r cycle.ExitReason) string {
	switch r {
	case cycle.ProfitTarget:
		return "Profit Exit"
	case cycle.ExpiryNoProfitNoLoss:
		return "Expiry (NPNL)"
	case cycle.ExpiryLoss:
		return "Expiry (Loss)"
	case cycle.TimeLimitNoProfitNoLoss:
		return "Time Exit (NPNL)"
	case cycle.TimeLimitLoss:
		return "Time Exit (Loss)"
	case cycle.SeriesExhausted:
		return "Series Exhausted"
	default:
		return string(r)
	}
}

func exitLeg(r cycle.ExitReason) string {
	switch r {
	case cycle.ProfitTarget:
		return "Target"
	case cycle.ExpiryNoProfitNoLoss, cycle.ExpiryLoss:
		return "Expiry"
	case cycle.TimeLimitNoProfitNoLoss, cycle.TimeLimitLoss:
		return "TimeLimit"
	default:
		return string(r)
	}
}
