package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jollygold/jollygold/internal/journal"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func testDBBar(symbol, day string, close float64) Bar {
	return Bar{
		Symbol: symbol,
		Date:   date(day),
		Open:   close - 1,
		High:   close + 2,
		Low:    close - 2,
		Close:  close,
	}
}

func TestMemoryStorage_Bars(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveBars(ctx, []Bar{
		testDBBar("GOLD", "2024-01-02", 100),
		testDBBar("GOLD", "2024-01-01", 99),
		testDBBar("SILVER", "2024-01-01", 25),
	}))

	t.Run("Sorted by date", func(t *testing.T) {
		bars, err := m.GetBars(ctx, "GOLD", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.Equal(t, date("2024-01-01"), bars[0].Date)
		assert.Equal(t, date("2024-01-02"), bars[1].Date)
	})

	t.Run("Symbol match is case-insensitive", func(t *testing.T) {
		bars, err := m.GetBars(ctx, "gold", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, bars, 2)
	})

	t.Run("Date range filter", func(t *testing.T) {
		bars, err := m.GetBars(ctx, "GOLD", date("2024-01-02"), time.Time{})
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, date("2024-01-02"), bars[0].Date)
	})

	t.Run("Upsert replaces same date", func(t *testing.T) {
		require.NoError(t, m.SaveBars(ctx, []Bar{testDBBar("GOLD", "2024-01-02", 110)}))
		bars, err := m.GetBars(ctx, "GOLD", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.InDelta(t, 110, bars[1].Close, 1e-9)
	})

	t.Run("Invalid bar rejected", func(t *testing.T) {
		bad := testDBBar("GOLD", "2024-01-05", 100)
		bad.High = bad.Low - 1
		assert.Error(t, m.SaveBars(ctx, []Bar{bad}))
	})

	t.Run("Latest bar", func(t *testing.T) {
		latest, err := m.GetLatestBar(ctx, "GOLD")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, date("2024-01-02"), latest.Date)

		missing, err := m.GetLatestBar(ctx, "COPPER")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Delete before cutoff", func(t *testing.T) {
		require.NoError(t, m.DeleteBars(ctx, "GOLD", date("2024-01-02")))
		bars, err := m.GetBars(ctx, "GOLD", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, bars, 1)
		assert.Equal(t, date("2024-01-02"), bars[0].Date)
	})
}

func TestMemoryStorage_Cycles(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveCycles(ctx, []CycleRecord{
		{RunID: "r1", Symbol: "GOLD", Seq: 2, StartDate: date("2024-02-01")},
		{RunID: "r1", Symbol: "GOLD", Seq: 1, StartDate: date("2024-01-01")},
	}))

	records, err := m.GetCycles(ctx, "GOLD", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].Seq)
	assert.NotZero(t, records[0].ID)
	assert.False(t, records[0].CreatedAt.IsZero())

	filtered, err := m.GetCycles(ctx, "GOLD", date("2024-01-15"), time.Time{})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 2, filtered[0].Seq)
}

func TestMemoryStorage_EquityPoints(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.SaveEquityPoints(ctx, []EquityRecord{
		{RunID: "r1", Symbol: "GOLD", Seq: 1, CumulativeCapital: 100006},
		{RunID: "r2", Symbol: "GOLD", Seq: 1, CumulativeCapital: 100000},
	}))

	all, err := m.GetEquityPoints(ctx, "GOLD", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := m.GetEquityPoints(ctx, "GOLD", "r1")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.InDelta(t, 100006, one[0].CumulativeCapital, 1e-9)
}

func TestMemoryStorage_Events(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.LogEvent(ctx, journal.Event{
		Time:        date("2024-01-01"),
		Type:        "backtest",
		Description: "run_completed",
		Data:        map[string]any{"cycles": 2},
	}))
	require.NoError(t, m.LogEvent(ctx, journal.Event{
		Time: date("2024-03-01"),
		Type: "backtest",
	}))

	events, err := m.GetEvents(ctx, "backtest", date("2024-01-01"), date("2024-02-01"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "run_completed", events[0].Description)

	none, err := m.GetEvents(ctx, "order", date("2024-01-01"), date("2024-12-31"))
	require.NoError(t, err)
	assert.Empty(t, none)
}
