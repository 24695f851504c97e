// Package db
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/jollygold/jollygold/internal/journal"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB

	// Daily bars
	SaveBars(ctx context.Context, bars []Bar) error
	GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)
	GetLatestBar(ctx context.Context, symbol string) (*Bar, error)
	DeleteBars(ctx context.Context, symbol string, before time.Time) error

	// Backtest results
	SaveCycles(ctx context.Context, records []CycleRecord) error
	GetCycles(ctx context.Context, symbol string, start, end time.Time) ([]CycleRecord, error)
	SaveEquityPoints(ctx context.Context, points []EquityRecord) error
	GetEquityPoints(ctx context.Context, symbol, runID string) ([]EquityRecord, error)

	// Journal
	journal.Journaler
}
