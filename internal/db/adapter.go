// Package db adapter
package db

import "github.com/jollygold/jollygold/internal/bar"

func BarToPriceBar(b Bar) bar.PriceBar {
	return bar.PriceBar{
		Date:   b.Date,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Expiry: b.Expiry,
	}
}

func BarsToPriceBars(dbBars []Bar) []bar.PriceBar {
	bars := make([]bar.PriceBar, len(dbBars))
	for i, b := range dbBars {
		bars[i] = BarToPriceBar(b)
	}
	return bars
}

func PriceBarToBar(symbol string, b bar.PriceBar) Bar {
	return Bar{
		Symbol: symbol,
		Date:   b.Date,
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Expiry: b.Expiry,
	}
}

func PriceBarsToBars(symbol string, bars []bar.PriceBar) []Bar {
	dbBars := make([]Bar, len(bars))
	for i, b := range bars {
		dbBars[i] = PriceBarToBar(symbol, b)
	}
	return dbBars
}
