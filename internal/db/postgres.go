package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jollygold/jollygold/internal/db/conf"
	"github.com/jollygold/jollygold/internal/journal"
	_ "github.com/lib/pq"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

type Default struct {
	db *sql.DB
}

func New(c *conf.Config) (*Default, error) {
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

// executeWithTransaction executes a function with proper transaction management.
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

// -------- BarStorage --------

// SaveBars upserts daily bars; a re-import of the same file updates the
// existing rows in place.
func (p *Default) SaveBars(ctx context.Context, bars []Bar) error {
	if len(bars) == 0 {
		return nil
	}

	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("invalid bar at index %d for %s at %s: %w", i, b.Symbol, b.Date, err)
		}
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_bars (symbol, date, open, high, low, close, expiry)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (symbol, date) DO UPDATE SET
			open=EXCLUDED.open, high=EXCLUDED.high, low=EXCLUDED.low,
			close=EXCLUDED.close, expiry=EXCLUDED.expiry`)
		if err != nil {
			return fmt.Errorf("failed to prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bars {
			var expiry sql.NullTime
			if !b.Expiry.IsZero() {
				expiry = sql.NullTime{Time: b.Expiry, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, b.Symbol, b.Date, b.Open, b.High, b.Low, b.Close, expiry); err != nil {
				return fmt.Errorf("failed to save bar for %s at %s: %w", b.Symbol, b.Date, err)
			}
		}
		return nil
	})
}

func (p *Default) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT symbol, date, open, high, low, close, expiry
		FROM daily_bars
		WHERE symbol=$1 AND ($2::timestamptz IS NULL OR date >= $2) AND ($3::timestamptz IS NULL OR date <= $3)
		ORDER BY date ASC`,
		symbol, nullTime(start), nullTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var b Bar
		var expiry sql.NullTime
		if err := rows.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &expiry); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if expiry.Valid {
			b.Expiry = expiry.Time
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (p *Default) GetLatestBar(ctx context.Context, symbol string) (*Bar, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT symbol, date, open, high, low, close, expiry
		FROM daily_bars WHERE symbol=$1 ORDER BY date DESC LIMIT 1`, symbol)

	var b Bar
	var expiry sql.NullTime
	if err := row.Scan(&b.Symbol, &b.Date, &b.Open, &b.High, &b.Low, &b.Close, &expiry); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan latest bar: %w", err)
	}
	if expiry.Valid {
		b.Expiry = expiry.Time
	}
	return &b, nil
}

func (p *Default) DeleteBars(ctx context.Context, symbol string, before time.Time) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM daily_bars WHERE symbol=$1 AND date < $2`, symbol, before); err != nil {
			return fmt.Errorf("failed to delete bars for %s: %w", symbol, err)
		}
		return nil
	})
}

// -------- ResultStorage --------

func (p *Default) SaveCycles(ctx context.Context, records []CycleRecord) error {
	if len(records) == 0 {
		return nil
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cycles (run_id, symbol, seq, start_date, exit_date, legs, quantity, avg_price, exit_price, pnl, outcome)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`)
		if err != nil {
			return fmt.Errorf("failed to prepare cycle insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			var exitDate sql.NullTime
			if !r.ExitDate.IsZero() {
				exitDate = sql.NullTime{Time: r.ExitDate, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, r.RunID, r.Symbol, r.Seq, r.StartDate, exitDate,
				r.Legs, r.Quantity, r.AveragePrice, r.ExitPrice, r.Pnl, r.Outcome); err != nil {
				return fmt.Errorf("failed to save cycle %d of run %s: %w", r.Seq, r.RunID, err)
			}
		}
		return nil
	})
}

func (p *Default) GetCycles(ctx context.Context, symbol string, start, end time.Time) ([]CycleRecord, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT id, run_id, symbol, seq, start_date, exit_date, legs, quantity, avg_price, exit_price, pnl, outcome, created_at
		FROM cycles
		WHERE symbol=$1 AND ($2::timestamptz IS NULL OR start_date >= $2) AND ($3::timestamptz IS NULL OR start_date <= $3)
		ORDER BY run_id, seq ASC`,
		symbol, nullTime(start), nullTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var r CycleRecord
		var exitDate sql.NullTime
		if err := rows.Scan(&r.ID, &r.RunID, &r.Symbol, &r.Seq, &r.StartDate, &exitDate,
			&r.Legs, &r.Quantity, &r.AveragePrice, &r.ExitPrice, &r.Pnl, &r.Outcome, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cycle: %w", err)
		}
		if exitDate.Valid {
			r.ExitDate = exitDate.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Default) SaveEquityPoints(ctx context.Context, points []EquityRecord) error {
	if len(points) == 0 {
		return nil
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO equity_points (run_id, symbol, seq, date, cycle_pnl, cumulative_capital, is_profit)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`)
		if err != nil {
			return fmt.Errorf("failed to prepare equity insert: %w", err)
		}
		defer stmt.Close()

		for _, pt := range points {
			if _, err := stmt.ExecContext(ctx, pt.RunID, pt.Symbol, pt.Seq, pt.Date,
				pt.CyclePnl, pt.CumulativeCapital, pt.IsProfit); err != nil {
				return fmt.Errorf("failed to save equity point %d of run %s: %w", pt.Seq, pt.RunID, err)
			}
		}
		return nil
	})
}

func (p *Default) GetEquityPoints(ctx context.Context, symbol, runID string) ([]EquityRecord, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT run_id, symbol, seq, date, cycle_pnl, cumulative_capital, is_profit
		FROM equity_points
		WHERE symbol=$1 AND ($2 = '' OR run_id = $2)
		ORDER BY run_id, seq ASC`, symbol, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query equity points for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []EquityRecord
	for rows.Next() {
		var pt EquityRecord
		if err := rows.Scan(&pt.RunID, &pt.Symbol, &pt.Seq, &pt.Date,
			&pt.CyclePnl, &pt.CumulativeCapital, &pt.IsProfit); err != nil {
			return nil, fmt.Errorf("failed to scan equity point: %w", err)
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// -------- JournalStorage --------

func (p *Default) LogEvent(ctx context.Context, event journal.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO events (time, type, description, data)
		VALUES ($1,$2,$3,$4)`,
			event.Time, event.Type, event.Description, data); err != nil {
			return fmt.Errorf("failed to log event: %w", err)
		}
		return nil
	})
}

func (p *Default) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT time, type, description, data
		FROM events
		WHERE type=$1 AND time >= $2 AND time < $3
		ORDER BY time ASC`, eventType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var data []byte
		if err := rows.Scan(&e.Time, &e.Type, &e.Description, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
