package backtest

import (
	"github.com/montanaflynn/stats"

	"github.com/jollygold/jollygold/internal/cycle"
)

// Summary holds aggregate performance metrics over the completed cycles
// of a run.
type Summary struct {
	Cycles      int     `json:"cycles"`
	Incomplete  int     `json:"incomplete"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"win_rate"`
	TotalPnl    float64 `json:"total_pnl"`
	MeanPnl     float64 `json:"mean_pnl"`
	StdPnl      float64 `json:"std_pnl"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Summarize computes summary metrics from completed cycles and the
// equity curve. Incomplete cycles are counted but contribute no P&L.
func Summarize(cycles []cycle.Cycle, equity []EquityPoint) Summary {
	var s Summary
	var pnls []float64

	for _, c := range cycles {
		if !c.Complete() {
			s.Incomplete++
			continue
		}
		s.Cycles++
		pnl := c.Exit.RealizedPnl
		pnls = append(pnls, pnl)
		s.TotalPnl += pnl
		if pnl > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
	}

	if s.Cycles > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Cycles)
	}
	if len(pnls) > 0 {
		// stats errors only on empty input, which is excluded above.
		s.MeanPnl, _ = stats.Mean(pnls)
		s.StdPnl, _ = stats.StdDevP(pnls)
	}

	maxCapital := 0.0
	if len(equity) > 0 {
		maxCapital = equity[0].CumulativeCapital
	}
	for _, p := range equity {
		if p.CumulativeCapital > maxCapital {
			maxCapital = p.CumulativeCapital
		}
		if dd := maxCapital - p.CumulativeCapital; dd > s.MaxDrawdown {
			s.MaxDrawdown = dd
		}
	}

	return s
}
