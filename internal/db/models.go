package db

import (
	"errors"
	"time"
)

// Bar is one persisted daily price bar. Expiry is the zero time when the
// instrument has no contract expiry.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Expiry time.Time
}

// Validate checks if a bar row has valid data
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return errors.New("bar symbol cannot be empty")
	}
	if b.Date.IsZero() {
		return errors.New("bar date is zero")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return errors.New("bar prices must be positive")
	}
	if b.High < b.Low {
		return errors.New("bar high cannot be less than low")
	}
	if b.Open < b.Low || b.Open > b.High {
		return errors.New("bar open price must be between high and low")
	}
	if b.Close < b.Low || b.Close > b.High {
		return errors.New("bar close price must be between high and low")
	}
	return nil
}

// CycleRecord is one completed (or exhausted) cycle of a backtest run.
type CycleRecord struct {
	ID           int64
	RunID        string
	Symbol       string
	Seq          int
	StartDate    time.Time
	ExitDate     time.Time
	Legs         int
	Quantity     int
	AveragePrice float64
	ExitPrice    float64
	Pnl          float64
	Outcome      string
	CreatedAt    time.Time
}

// EquityRecord is one equity-curve point of a backtest run.
type EquityRecord struct {
	RunID             string
	Symbol            string
	Seq               int
	Date              time.Time
	CyclePnl          float64
	CumulativeCapital float64
	IsProfit          bool
}
