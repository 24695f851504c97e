package journal

import (
	"fmt"
	"io"
	"os"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"

	"github.com/jollygold/jollygold/internal/backtest"
)

// WriteLedgerCSV exports ledger rows to a CSV file.
func WriteLedgerCSV(path string, rows []LedgerRow) error {
	return writeCSV(path, &rows)
}

// WriteEquityCSV exports equity-curve rows to a CSV file.
func WriteEquityCSV(path string, rows []EquityRow) error {
	return writeCSV(path, &rows)
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// RenderLedger prints the ledger as a console table.
func RenderLedger(w io.Writer, rows []LedgerRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Cycle", "Date", "Action", "Leg", "Qty", "Price", "Avg Price", "Status", "PnL"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for _, r := range rows {
		table.Append([]string{
			fmt.Sprintf("%d", r.Cycle),
			r.Date,
			r.Action,
			r.Leg,
			fmt.Sprintf("%d", r.Quantity),
			fmt.Sprintf("%.2f", r.Price),
			fmt.Sprintf("%.2f", r.AveragePrice),
			r.Status,
			fmt.Sprintf("%.2f", r.Pnl),
		})
	}
	table.Render()
}

// RenderSummary prints the run's aggregate metrics as a console table.
func RenderSummary(w io.Writer, s backtest.Summary) {
	table := tablewriter.NewWriter(w)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")

	table.Append([]string{"Completed Cycles", fmt.Sprintf("%d", s.Cycles)})
	if s.Incomplete > 0 {
		table.Append([]string{"Incomplete Cycles", fmt.Sprintf("%d", s.Incomplete)})
	}
	table.Append([]string{"Wins / Losses", fmt.Sprintf("%d / %d", s.Wins, s.Losses)})
	table.Append([]string{"Win Rate", fmt.Sprintf("%.1f%%", s.WinRate*100)})
	table.Append([]string{"Total PnL", fmt.Sprintf("%.2f", s.TotalPnl)})
	table.Append([]string{"Avg PnL / Cycle", fmt.Sprintf("%.2f", s.MeanPnl)})
	table.Append([]string{"PnL Std Dev", fmt.Sprintf("%.2f", s.StdPnl)})
	table.Append([]string{"Max Drawdown", fmt.Sprintf("%.2f", s.MaxDrawdown)})
	table.Render()
}
