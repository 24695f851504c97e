package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	wallex "github.com/wallexchange/wallex-go"

	"github.com/jollygold/jollygold/internal/bar"
	"github.com/jollygold/jollygold/internal/utils"
)

const dailyResolution = "1D"

type WallexExchange struct {
	client *wallex.Client
}

func NewWallexExchange(apiKey string) Exchange {
	return &WallexExchange{
		client: wallex.New(wallex.ClientOptions{APIKey: apiKey}),
	}
}

func (w *WallexExchange) Name() string {
	return "wallex"
}

// retry wraps a function with retry logic for transient errors, using exponential backoff and error logging.
func retry(attempts int, delay time.Duration, fn func() error) error {
	backoff := delay
	for i := 1; i <= attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		utils.GetLogger().Printf("Exchange | %s Retry attempt %d/%d failed: %v. Backing off for %v", "Wallex", i, attempts, err, backoff)
		time.Sleep(backoff)
		// Exponential backoff, but cap at 5 minutes
		if backoff < 5*time.Minute {
			backoff *= 2
			if backoff > 5*time.Minute {
				backoff = 5 * time.Minute
			}
		}
	}
	return errors.New("all retry attempts failed")
}

// FetchDailyBars downloads daily candles and maps them to price bars. Bars
// fetched this way carry no contract expiry.
func (w *WallexExchange) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]bar.PriceBar, error) {
	normalizedSymbol := NormalizeSymbol(symbol)

	var wallexCandles []*wallex.Candle

	select {
	case <-ctx.Done():
		utils.GetLogger().Printf("Exchange | %s FetchDailyBars timeout", w.Name())
		return nil, ctx.Err()

	default:
		err := retry(3, 2*time.Second, func() error {
			var err error
			wallexCandles, err = w.client.Candles(normalizedSymbol, dailyResolution, start, end)
			if err != nil {
				return fmt.Errorf("fetching candles: %w", err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("FetchDailyBars failed: %w", err)
		}
	}

	var bars []bar.PriceBar
	for _, wc := range wallexCandles {
		open, _ := strconv.ParseFloat(string(wc.Open), 64)
		high, _ := strconv.ParseFloat(string(wc.High), 64)
		low, _ := strconv.ParseFloat(string(wc.Low), 64)
		close, _ := strconv.ParseFloat(string(wc.Close), 64)

		b := bar.PriceBar{
			Date:  bar.Day(wc.Timestamp.UTC()),
			Open:  open,
			High:  high,
			Low:   low,
			Close: close,
		}

		// Skip invalid bars
		if err := b.Validate(); err != nil {
			continue
		}

		bars = append(bars, b)
	}

	return bars, nil
}

// NormalizeSymbol converts a symbol like "BTC-USDT" or "btc/usdt" to the
// exchange's "BTCUSDT" form.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	return s
}
