package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jollygold/jollygold/internal/bar"
	"github.com/jollygold/jollygold/internal/strategy"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testBar(day string, open, high, low, close float64, expiry string) bar.PriceBar {
	b := bar.PriceBar{Date: date(day), Open: open, High: high, Low: low, Close: close}
	if expiry != "" {
		b.Expiry = date(expiry)
	}
	return b
}

func mustSeries(t *testing.T, bars ...bar.PriceBar) *bar.Series {
	t.Helper()
	s, err := bar.NewSeries(bars)
	require.NoError(t, err)
	return s
}

func twoLegConfig() strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.LotSizes = []int{6, 4}
	cfg.GapPercents = []float64{0, 1}
	return cfg
}

func timeLimitConfig(days int) strategy.Config {
	cfg := strategy.DefaultConfig()
	cfg.LotSizes = []int{6}
	cfg.GapPercents = []float64{0}
	cfg.Policy = strategy.ExitPolicy{Kind: strategy.ExitOnTimeLimit, TimeLimitDays: days}
	return cfg
}

func TestNewSimulator(t *testing.T) {
	t.Run("Invalid config", func(t *testing.T) {
		s := mustSeries(t, testBar("2024-01-01", 100, 105, 99, 102, "2024-01-31"))
		cfg := strategy.DefaultConfig()
		cfg.ProfitTargetPercent = -1
		_, err := NewSimulator(s, cfg)
		assert.ErrorIs(t, err, strategy.ErrInvalidConfig)
	})

	t.Run("Expiry policy needs expiry dates", func(t *testing.T) {
		s := mustSeries(t, testBar("2024-01-01", 100, 105, 99, 102, ""))
		_, err := NewSimulator(s, strategy.DefaultConfig())
		assert.ErrorIs(t, err, strategy.ErrInvalidConfig)
	})

	t.Run("Time limit policy works without expiry dates", func(t *testing.T) {
		s := mustSeries(t, testBar("2024-01-01", 100, 105, 99, 102, ""))
		_, err := NewSimulator(s, timeLimitConfig(60))
		assert.NoError(t, err)
	})
}

func TestSimulator_InvalidStart(t *testing.T) {
	s := mustSeries(t,
		testBar("2024-01-01", 100, 105, 99, 102, "2024-01-31"),
		testBar("2024-01-02", 100, 105, 99, 102, "2024-01-31"),
	)
	sim, err := NewSimulator(s, twoLegConfig())
	require.NoError(t, err)

	t.Run("Date not in series", func(t *testing.T) {
		_, err := sim.Run(date("2024-01-05"), nil)
		var ise *InvalidStartError
		require.ErrorAs(t, err, &ise)
		assert.Equal(t, date("2024-01-05"), ise.Date)
	})

	t.Run("Start on last bar", func(t *testing.T) {
		_, err := sim.Run(date("2024-01-02"), nil)
		var ise *InvalidStartError
		assert.ErrorAs(t, err, &ise)
	})
}

func TestSimulator_ProfitTarget(t *testing.T) {
	cfg := strategy.DefaultConfig()
	cfg.LotSizes = []int{6}
	cfg.GapPercents = []float64{0}

	s := mustSeries(t,
		testBar("2024-01-01", 50000, 50380, 49900, 50200, "2024-01-02"),
		testBar("2024-01-02", 50500, 51000, 50400, 50900, "2024-01-02"),
	)
	sim, err := NewSimulator(s, cfg)
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)
	require.True(t, c.Complete())

	// Leg 1 fills at the start bar's high.
	require.Len(t, c.Legs, 1)
	assert.Equal(t, StartedAtHigh, c.Legs[0].Reason)
	assert.InDelta(t, 50380, c.Legs[0].FillPrice, 1e-9)

	// The second bar is also the expiry bar, but the profit target is
	// checked first and wins.
	assert.Equal(t, ProfitTarget, c.Exit.Reason)
	assert.InDelta(t, 50883.8, c.Exit.ExitPrice, 1e-6)
	assert.InDelta(t, (50883.8-50380)*6, c.Exit.RealizedPnl, 1e-6)
	assert.Equal(t, 1, c.NextIndex)
}

func TestSimulator_GapDownAndExpiryNPNL(t *testing.T) {
	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98, 99, "2024-01-10"),
		testBar("2024-01-02", 97.5, 98, 97, 97.8, "2024-01-10"),
		testBar("2024-01-10", 99, 99.5, 98.5, 99.2, "2024-01-10"),
	)
	sim, err := NewSimulator(s, twoLegConfig())
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)
	require.True(t, c.Complete())
	require.Len(t, c.Legs, 2)

	// Leg 2 trigger is min(100-1%, 99-1%) = 98.01, but the bar opened
	// below it, so the fill improves to the open.
	assert.Equal(t, GapDownOpen, c.Legs[1].Reason)
	assert.InDelta(t, 97.5, c.Legs[1].FillPrice, 1e-9)
	assert.InDelta(t, 99.0, c.Legs[1].RunningAverage, 1e-9)

	// On the expiry bar the high reaches the average: flat exit at the
	// average with zero P&L.
	assert.Equal(t, ExpiryNoProfitNoLoss, c.Exit.Reason)
	assert.InDelta(t, 99.0, c.Exit.ExitPrice, 1e-9)
	assert.InDelta(t, 0, c.Exit.RealizedPnl, 1e-9)
	assert.Equal(t, 10, c.Exit.Quantity)
}

func TestSimulator_ExpiryLoss(t *testing.T) {
	cfg := strategy.DefaultConfig()
	cfg.LotSizes = []int{6}
	cfg.GapPercents = []float64{0}

	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98, 99, "2024-01-03"),
		testBar("2024-01-02", 95, 96, 94, 95, "2024-01-03"),
		testBar("2024-01-03", 94, 95, 93, 94, "2024-01-03"),
	)
	sim, err := NewSimulator(s, cfg)
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)
	require.True(t, c.Complete())

	// High never recovers to the average: forced exit books the loss at
	// the expiry bar's close.
	assert.Equal(t, ExpiryLoss, c.Exit.Reason)
	assert.InDelta(t, 94, c.Exit.ExitPrice, 1e-9)
	assert.InDelta(t, (94.0-100.0)*6, c.Exit.RealizedPnl, 1e-9)
}

func TestSimulator_TimeLimit(t *testing.T) {
	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98, 99, ""),
		testBar("2024-01-02", 98.5, 99.4, 98, 99, ""),
		testBar("2024-01-03", 99, 99.6, 98.5, 99.3, ""),
	)
	sim, err := NewSimulator(s, timeLimitConfig(2))
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)
	require.True(t, c.Complete())

	// Two calendar days after entry the limit fires; the high is below
	// the average of 100 so the exit books a loss at the close.
	assert.Equal(t, date("2024-01-03"), c.Exit.Date)
	assert.Equal(t, TimeLimitLoss, c.Exit.Reason)
	assert.InDelta(t, 99.3, c.Exit.ExitPrice, 1e-9)
}

func TestSimulator_TriggerUsesPreviousClose(t *testing.T) {
	cfg := twoLegConfig()
	cfg.Policy = strategy.ExitPolicy{Kind: strategy.ExitOnTimeLimit, TimeLimitDays: 60}

	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98.5, 100, ""),
		testBar("2024-01-02", 99.6, 99.7, 99.5, 99.5, ""),
		testBar("2024-01-03", 99, 99.2, 98.6, 98.7, ""),
	)
	sim, err := NewSimulator(s, cfg)
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)

	// Day 2: trigger is min(99, 99) = 99, low 99.5 stays above it.
	// Day 3: the previous close of 99.5 tightens the trigger to 98.505,
	// so the low of 98.6 still does not fill even though it is below the
	// average-based level of 99.
	assert.Len(t, c.Legs, 1)
	assert.False(t, c.Complete())
}

func TestSimulator_SeriesExhausted(t *testing.T) {
	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98, 99, ""),
		testBar("2024-01-02", 98.5, 99.4, 98, 99, ""),
	)
	sim, err := NewSimulator(s, timeLimitConfig(60))
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)

	assert.False(t, c.Complete())
	assert.Nil(t, c.Exit)
	assert.Equal(t, SeriesExhausted, c.Outcome())
	assert.Equal(t, 0.0, c.RealizedPnl())
	assert.Equal(t, 1, c.NextIndex)
}

func TestSimulator_EntryOverride(t *testing.T) {
	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98, 99, ""),
		testBar("2024-01-02", 104, 106, 103, 105, ""),
	)
	sim, err := NewSimulator(s, timeLimitConfig(60))
	require.NoError(t, err)

	entry := 104.0
	c, err := sim.Run(date("2024-01-01"), &entry)
	require.NoError(t, err)

	require.Len(t, c.Legs, 1)
	assert.Equal(t, CarriedFromPreviousExit, c.Legs[0].Reason)
	assert.InDelta(t, 104, c.Legs[0].FillPrice, 1e-9)

	// Target off the carried entry: 104 * 1.01 = 105.04, hit on day 2.
	require.True(t, c.Complete())
	assert.Equal(t, ProfitTarget, c.Exit.Reason)
	assert.InDelta(t, 105.04, c.Exit.ExitPrice, 1e-9)
}

func TestSimulator_LegOrderingAndAverages(t *testing.T) {
	cfg := strategy.DefaultConfig()
	cfg.LotSizes = []int{6, 4, 6}
	cfg.GapPercents = []float64{0, 1, 1.5}
	cfg.Policy = strategy.ExitPolicy{Kind: strategy.ExitOnTimeLimit, TimeLimitDays: 365}

	s := mustSeries(t,
		testBar("2024-01-01", 99, 100, 98, 100, ""),
		testBar("2024-01-02", 98.8, 99, 98, 98.2, ""),
		testBar("2024-01-03", 97.5, 98, 96.5, 97, ""),
		testBar("2024-01-04", 97, 97.5, 96.8, 97.2, ""),
	)
	sim, err := NewSimulator(s, cfg)
	require.NoError(t, err)

	c, err := sim.Run(date("2024-01-01"), nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(c.Legs), 2)

	for i, l := range c.Legs {
		assert.Equal(t, i+1, l.LegIndex)
		if i > 0 {
			assert.False(t, l.Date.Before(c.Legs[i-1].Date))
			assert.Less(t, l.FillPrice, c.Legs[i-1].RunningAverage)
		}
		assert.InDelta(t, averagePrice(c.Legs[:i+1]), l.RunningAverage, 1e-9)
	}
	assert.Equal(t, c.TotalQuantity(), totalQuantity(c.Legs))
}
