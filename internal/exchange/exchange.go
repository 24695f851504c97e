// Package exchange
package exchange

import (
	"context"
	"time"

	"github.com/jollygold/jollygold/internal/bar"
)

// Exchange is the interface for all supported remote bar sources.
type Exchange interface {
	Name() string
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]bar.PriceBar, error)
}
