// Package bar
package bar

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// PriceBar is one trading day of an instrument.
// Expiry is the contract expiry date for that day's row; it is the zero
// time when the data source carries no expiry column.
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Expiry time.Time `json:"expiry"`
}

// Validate checks if a bar has valid data
func (b *PriceBar) Validate() error {
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
	if !b.Expiry.IsZero() && b.Expiry.Before(Day(b.Date)) {
		return errors.New("bar expiry date cannot precede bar date")
	}
	return nil
}

// Day truncates a timestamp to midnight UTC, the canonical key for a
// trading day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Series is an ordered, date-indexed sequence of daily bars. It is
// immutable once constructed and safe to share across concurrent
// simulations.
type Series struct {
	bars  []PriceBar
	index map[time.Time]int
}

// NewSeries validates and sorts the given bars into a Series. Dates must
// be unique; duplicates are rejected here rather than silently merged.
func NewSeries(bars []PriceBar) (*Series, error) {
	if len(bars) == 0 {
		return nil, errors.New("series must contain at least one bar")
	}

	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	for i := range sorted {
		sorted[i].Date = Day(sorted[i].Date)
		if !sorted[i].Expiry.IsZero() {
			sorted[i].Expiry = Day(sorted[i].Expiry)
		}
		if err := sorted[i].Validate(); err != nil {
			return nil, fmt.Errorf("invalid bar at %s: %w", sorted[i].Date.Format("2006-01-02"), err)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	index := make(map[time.Time]int, len(sorted))
	for i, b := range sorted {
		if _, ok := index[b.Date]; ok {
			return nil, fmt.Errorf("duplicate bar date %s", b.Date.Format("2006-01-02"))
		}
		index[b.Date] = i
	}

	return &Series{bars: sorted, index: index}, nil
}

// Len returns the number of bars in the series.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at position i.
func (s *Series) At(i int) PriceBar { return s.bars[i] }

// Bars returns the underlying bars in date order. Callers must not
// mutate the returned slice.
func (s *Series) Bars() []PriceBar { return s.bars }

// First returns the earliest bar in the series.
func (s *Series) First() PriceBar { return s.bars[0] }

// Last returns the latest bar in the series.
func (s *Series) Last() PriceBar { return s.bars[len(s.bars)-1] }

// Index returns the position of the bar with exactly the given date.
func (s *Series) Index(date time.Time) (int, bool) {
	i, ok := s.index[Day(date)]
	return i, ok
}

// Seek returns the position of the first bar on or after the given date.
// It is used to resolve user-supplied start dates that may fall on a
// non-trading day.
func (s *Series) Seek(date time.Time) (int, bool) {
	d := Day(date)
	i := sort.Search(len(s.bars), func(i int) bool {
		return !s.bars[i].Date.Before(d)
	})
	if i == len(s.bars) {
		return 0, false
	}
	return i, true
}

// HasExpiry reports whether every bar in the series carries an expiry
// date. The expiry exit policy requires this.
func (s *Series) HasExpiry() bool {
	for _, b := range s.bars {
		if b.Expiry.IsZero() {
			return false
		}
	}
	return true
}
