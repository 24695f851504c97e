package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jollygold/jollygold/internal/bar"
)

// canonicalColumn maps a raw header cell to one of the canonical column names,
// or "" when the column is not recognized.
func canonicalColumn(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "", "_", "", "-", "", ".", "").Replace(key)

	switch key {
	case "date", "time", "timestamp", "tradedate":
		return "date"
	case "open", "openprice":
		return "open"
	case "high", "highprice":
		return "high"
	case "low", "lowprice":
		return "low"
	case "close", "closeprice", "settle", "settleprice":
		return "close"
	case "expiry", "expirydate", "expiration", "expirationdate":
		return "expiry"
	default:
		return ""
	}
}

// cleanNumeric strips thousands separators and surrounding whitespace.
func cleanNumeric(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}

func parsePrice(field, raw string) (float64, error) {
	s := cleanNumeric(raw)
	if s == "" {
		return 0, fmt.Errorf("%s is empty", field)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", field, raw, err)
	}
	return v, nil
}

var dateLayouts = []string{
	"2006-01-02",
	"02-01-2006",
	"02/01/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	time.RFC3339,
}

func parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return bar.Day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
