package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconf "github.com/jollygold/jollygold/internal/db/conf"
	"github.com/jollygold/jollygold/internal/journal"
)

// newTestStorage spins up a throwaway database; the test is skipped when
// PostgreSQL is not reachable.
func newTestStorage(t *testing.T) *Default {
	t.Helper()
	cfg, cleanup := dbconf.NewTestConfig(t)
	require.NotNil(t, cfg)
	t.Cleanup(cleanup)

	storage, err := New(cfg)
	require.NoError(t, err)
	return storage
}

func TestDefault_Bars(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	bars := []Bar{
		testDBBar("GOLD", "2024-01-01", 100),
		testDBBar("GOLD", "2024-01-02", 101),
	}
	bars[0].Expiry = date("2024-01-31")
	bars[1].Expiry = date("2024-01-31")

	require.NoError(t, storage.SaveBars(ctx, bars))

	t.Run("Round trip", func(t *testing.T) {
		got, err := storage.GetBars(ctx, "GOLD", time.Time{}, time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.InDelta(t, 100, got[0].Close, 1e-9)
		assert.Equal(t, date("2024-01-31"), got[0].Expiry.UTC())
	})

	t.Run("Upsert on conflict", func(t *testing.T) {
		updated := testDBBar("GOLD", "2024-01-02", 105)
		updated.Expiry = date("2024-01-31")
		require.NoError(t, storage.SaveBars(ctx, []Bar{updated}))

		got, err := storage.GetBars(ctx, "GOLD", date("2024-01-02"), time.Time{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 105, got[0].Close, 1e-9)
	})

	t.Run("Latest bar", func(t *testing.T) {
		latest, err := storage.GetLatestBar(ctx, "GOLD")
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, date("2024-01-02"), latest.Date.UTC())

		missing, err := storage.GetLatestBar(ctx, "COPPER")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("Delete before cutoff", func(t *testing.T) {
		require.NoError(t, storage.DeleteBars(ctx, "GOLD", date("2024-01-02")))
		got, err := storage.GetBars(ctx, "GOLD", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}

func TestDefault_Results(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.SaveCycles(ctx, []CycleRecord{
		{
			RunID: "r1", Symbol: "GOLD", Seq: 1,
			StartDate: date("2024-01-01"), ExitDate: date("2024-01-05"),
			Legs: 2, Quantity: 10, AveragePrice: 99, ExitPrice: 99.99,
			Pnl: 9.9, Outcome: "profit_target",
		},
		{
			RunID: "r1", Symbol: "GOLD", Seq: 2,
			StartDate: date("2024-01-08"),
			Legs:      1, Quantity: 6, AveragePrice: 104.99,
			Outcome: "series_exhausted",
		},
	}))

	records, err := storage.GetCycles(ctx, "GOLD", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "profit_target", records[0].Outcome)
	assert.True(t, records[1].ExitDate.IsZero())
	assert.NotZero(t, records[0].ID)

	require.NoError(t, storage.SaveEquityPoints(ctx, []EquityRecord{
		{RunID: "r1", Symbol: "GOLD", Seq: 1, Date: date("2024-01-05"), CyclePnl: 9.9, CumulativeCapital: 100009.9, IsProfit: true},
	}))

	points, err := storage.GetEquityPoints(ctx, "GOLD", "r1")
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.InDelta(t, 100009.9, points[0].CumulativeCapital, 1e-6)
}

func TestDefault_Events(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.LogEvent(ctx, journal.Event{
		Time:        date("2024-01-01"),
		Type:        "backtest",
		Description: "run_completed",
		Data:        map[string]any{"cycles": float64(2)},
	}))

	events, err := storage.GetEvents(ctx, "backtest", date("2024-01-01"), date("2024-01-02"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "run_completed", events[0].Description)
	assert.EqualValues(t, 2, events[0].Data["cycles"])
}

func TestDefault_Transactions(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	t.Run("Rollback discards writes", func(t *testing.T) {
		tx, err := storage.GetDB().Begin()
		require.NoError(t, err)
		txCtx := WithTransaction(ctx, tx)

		require.NoError(t, storage.SaveBars(txCtx, []Bar{testDBBar("GOLD", "2024-02-01", 100)}))
		require.NoError(t, tx.Rollback())

		got, err := storage.GetBars(ctx, "GOLD", date("2024-02-01"), time.Time{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Commit persists writes", func(t *testing.T) {
		tx, err := storage.GetDB().Begin()
		require.NoError(t, err)
		txCtx := WithTransaction(ctx, tx)

		require.NoError(t, storage.SaveBars(txCtx, []Bar{testDBBar("GOLD", "2024-02-02", 100)}))
		require.NoError(t, tx.Commit())

		got, err := storage.GetBars(ctx, "GOLD", date("2024-02-02"), time.Time{})
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})
}
