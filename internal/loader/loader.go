// Package loader reads daily price bars from CSV and XLSX files.
package loader

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"

	"github.com/jollygold/jollygold/internal/bar"
	"github.com/jollygold/jollygold/internal/utils"
)

// row is the raw string form of one file row, after header normalization.
type row struct {
	Date   string `csv:"date"`
	Open   string `csv:"open"`
	High   string `csv:"high"`
	Low    string `csv:"low"`
	Close  string `csv:"close"`
	Expiry string `csv:"expiry"`
}

// LoadFile loads a bar series from a CSV or XLSX file, dispatching on the
// file extension.
func LoadFile(path string) (*bar.Series, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".xlsx":
		return LoadXLSX(path, "")
	default:
		return nil, fmt.Errorf("unsupported data file %s: expected .csv or .xlsx", path)
	}
}

// LoadCSV loads a bar series from a CSV file. The header row is matched
// case-insensitively and extra columns are ignored.
func LoadCSV(path string) (*bar.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return seriesFromRecords(path, records)
}

// LoadXLSX loads a bar series from an XLSX workbook. When sheet is empty the
// first sheet is used.
func LoadXLSX(path, sheet string) (*bar.Series, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s of %s: %w", sheet, path, err)
	}

	return seriesFromRecords(path, records)
}

// seriesFromRecords maps raw header+rows to bars. Rows that fail to parse or
// validate are skipped with a warning; duplicate dates keep the last row.
func seriesFromRecords(path string, records [][]string) (*bar.Series, error) {
	if len(records) < 2 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}

	rows, err := decodeRows(records)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	byDate := make(map[string]bar.PriceBar, len(rows))
	order := make([]string, 0, len(rows))
	for i, r := range rows {
		b, err := parseRow(r)
		if err != nil {
			utils.GetLogger().Warnf("Loader | %s skipping row %d: %v", path, i+2, err)
			continue
		}
		key := b.Date.Format("2006-01-02")
		if _, seen := byDate[key]; !seen {
			order = append(order, key)
		}
		byDate[key] = b
	}

	bars := make([]bar.PriceBar, 0, len(order))
	for _, key := range order {
		bars = append(bars, byDate[key])
	}

	return bar.NewSeries(bars)
}

// decodeRows rewrites the header to canonical column names and unmarshals the
// remaining records through gocsv.
func decodeRows(records [][]string) ([]row, error) {
	header := make([]string, len(records[0]))
	known := 0
	for i, col := range records[0] {
		header[i] = canonicalColumn(col)
		if header[i] != "" {
			known++
		} else {
			header[i] = fmt.Sprintf("ignored_%d", i)
		}
	}
	if known == 0 {
		return nil, fmt.Errorf("no recognized columns in header %v", records[0])
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, rec := range records[1:] {
		// Pad short rows so every record matches the header width
		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}
		if err := w.Write(rec[:len(header)]); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	var rows []row
	if err := gocsv.UnmarshalBytes(buf.Bytes(), &rows); err != nil {
		return nil, fmt.Errorf("decoding rows: %w", err)
	}
	return rows, nil
}

func parseRow(r row) (bar.PriceBar, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return bar.PriceBar{}, err
	}

	open, err := parsePrice("open", r.Open)
	if err != nil {
		return bar.PriceBar{}, err
	}
	high, err := parsePrice("high", r.High)
	if err != nil {
		return bar.PriceBar{}, err
	}
	low, err := parsePrice("low", r.Low)
	if err != nil {
		return bar.PriceBar{}, err
	}
	close, err := parsePrice("close", r.Close)
	if err != nil {
		return bar.PriceBar{}, err
	}

	b := bar.PriceBar{Date: date, Open: open, High: high, Low: low, Close: close}

	if strings.TrimSpace(r.Expiry) != "" {
		expiry, err := parseDate(r.Expiry)
		if err != nil {
			return bar.PriceBar{}, fmt.Errorf("expiry: %w", err)
		}
		b.Expiry = expiry
	}

	if err := b.Validate(); err != nil {
		return bar.PriceBar{}, err
	}
	return b, nil
}
