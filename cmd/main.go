package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lib/pq"

	"github.com/jollygold/jollygold/internal/backtest"
	"github.com/jollygold/jollygold/internal/bar"
	"github.com/jollygold/jollygold/internal/config"
	"github.com/jollygold/jollygold/internal/db"
	"github.com/jollygold/jollygold/internal/db/conf"
	"github.com/jollygold/jollygold/internal/exchange"
	"github.com/jollygold/jollygold/internal/journal"
	"github.com/jollygold/jollygold/internal/loader"
	"github.com/jollygold/jollygold/internal/utils"
)

func main() {
	cfg := config.MustLoadConfig()
	logger := utils.GetLogger()
	logger.Infof("Main | Starting Jolly Gold backtester in mode: %s", cfg.Mode)

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("Main | Received signal %v, shutting down...", sig)
		cancel()
	}()

	// Run migrations if enabled
	if cfg.RunMigration {
		if err := runMigrations(ctx, cfg.DBConnStr); err != nil {
			logger.Fatalf("Main | Failed to run migrations: %v", err)
		}
	}

	// Initialize storage when a database is configured
	var storage db.Storage
	if cfg.DBConnStr != "" {
		dbConfig, err := conf.NewConfig(cfg.DBConnStr, cfg.DBMaxOpen, cfg.DBMaxIdle)
		if err != nil {
			logger.Fatalf("Main | Failed to create DB config: %v", err)
		}
		defer dbConfig.DB.Close()

		storage, err = db.New(dbConfig)
		if err != nil {
			logger.Fatalf("Main | Failed to initialize database: %v", err)
		}
		logger.Info("Main | Connected to Postgres")
	}

	series, err := loadSeries(ctx, cfg, storage)
	if err != nil {
		logger.Fatalf("Main | Failed to load bars: %v", err)
	}
	logger.Infof("Main | Loaded %d bars for %s (%s to %s)",
		series.Len(), cfg.Symbol,
		series.First().Date.Format("2006-01-02"),
		series.Last().Date.Format("2006-01-02"))

	driver, err := backtest.NewDriver(series, cfg.Strategy, cfg.InitialCapital)
	if err != nil {
		logger.Fatalf("Main | Failed to create driver: %v", err)
	}

	start := cfg.From
	if start.IsZero() {
		start = series.First().Date
	}

	switch cfg.Mode {
	case "single":
		runSingle(cfg, driver, start)

	case "continuous":
		runContinuous(ctx, cfg, driver, start, storage)
	}
}

// loadSeries resolves the bar source: data file first, then the database,
// then a fresh exchange download.
func loadSeries(ctx context.Context, cfg config.Config, storage db.Storage) (*bar.Series, error) {
	logger := utils.GetLogger()

	if cfg.DataFile != "" {
		var series *bar.Series
		var err error
		if cfg.Sheet != "" {
			series, err = loader.LoadXLSX(cfg.DataFile, cfg.Sheet)
		} else {
			series, err = loader.LoadFile(cfg.DataFile)
		}
		if err != nil {
			return nil, err
		}

		// Keep the database in sync with the imported file
		if storage != nil {
			if err := storage.SaveBars(ctx, db.PriceBarsToBars(cfg.Symbol, series.Bars())); err != nil {
				logger.Warnf("Main | Failed to persist imported bars: %v", err)
			}
		}
		return series, nil
	}

	if storage != nil {
		dbBars, err := storage.GetBars(ctx, cfg.Symbol, cfg.From, cfg.To)
		if err != nil {
			return nil, err
		}
		if len(dbBars) > 0 {
			return bar.NewSeries(db.BarsToPriceBars(dbBars))
		}
		logger.Infof("Main | No stored bars for %s, falling back to exchange", cfg.Symbol)
	}

	if cfg.WallexAPIKey == "" {
		return nil, fmt.Errorf("no data file, stored bars, or exchange credentials for %s", cfg.Symbol)
	}

	ex := exchange.NewWallexExchange(cfg.WallexAPIKey)
	start := cfg.From
	if start.IsZero() {
		start = time.Now().UTC().AddDate(-2, 0, 0)
	}
	end := cfg.To
	if end.IsZero() {
		end = time.Now().UTC()
	}

	bars, err := ex.FetchDailyBars(ctx, cfg.Symbol, start, end)
	if err != nil {
		return nil, err
	}
	if storage != nil {
		if err := storage.SaveBars(ctx, db.PriceBarsToBars(cfg.Symbol, bars)); err != nil {
			logger.Warnf("Main | Failed to persist downloaded bars: %v", err)
		}
	}
	return bar.NewSeries(bars)
}

func runSingle(cfg config.Config, driver *backtest.Driver, start time.Time) {
	logger := utils.GetLogger()

	c, err := driver.RunSingle(start)
	if err != nil {
		logger.Fatalf("Main | Single cycle failed: %v", err)
	}

	rows := journal.FlattenCycle(1, c)
	journal.RenderLedger(os.Stdout, rows)

	if c.Complete() {
		logger.Infof("Main | Cycle done: %s at %.2f, PnL %.2f",
			journal.ExitStatus(c.Exit.Reason), c.Exit.ExitPrice, c.Exit.RealizedPnl)
	} else {
		logger.Warn("Main | Cycle left open: series exhausted before an exit")
	}

	if cfg.LedgerCSV != "" {
		if err := journal.WriteLedgerCSV(cfg.LedgerCSV, rows); err != nil {
			logger.Errorf("Main | Failed to write ledger CSV: %v", err)
		}
	}
}

func runContinuous(ctx context.Context, cfg config.Config, driver *backtest.Driver, start time.Time, storage db.Storage) {
	logger := utils.GetLogger()

	res, err := driver.RunContinuous(start, cfg.To)
	if err != nil {
		logger.Fatalf("Main | Backtest failed: %v", err)
	}

	rows := journal.FlattenCycles(res.Cycles)
	journal.RenderLedger(os.Stdout, rows)
	fmt.Println()
	journal.RenderSummary(os.Stdout, res.Summary)

	logger.Infof("Main | Backtest done: %d cycles, capital %.2f -> %.2f",
		len(res.Cycles), res.InitialCapital, res.FinalCapital)

	if cfg.LedgerCSV != "" {
		if err := journal.WriteLedgerCSV(cfg.LedgerCSV, rows); err != nil {
			logger.Errorf("Main | Failed to write ledger CSV: %v", err)
		}
	}
	if cfg.EquityCSV != "" {
		if err := journal.WriteEquityCSV(cfg.EquityCSV, journal.FlattenEquity(res.Equity)); err != nil {
			logger.Errorf("Main | Failed to write equity CSV: %v", err)
		}
	}

	if storage != nil {
		if err := persistResults(ctx, cfg, storage, res); err != nil {
			logger.Errorf("Main | Failed to persist results: %v", err)
		}
	}
}

// persistResults stores the run's cycles and equity curve in one transaction.
func persistResults(ctx context.Context, cfg config.Config, storage db.Storage, res backtest.Result) error {
	records := make([]db.CycleRecord, 0, len(res.Cycles))
	for i, c := range res.Cycles {
		r := db.CycleRecord{
			RunID:        cfg.RunID,
			Symbol:       cfg.Symbol,
			Seq:          i + 1,
			StartDate:    c.StartDate,
			Legs:         len(c.Legs),
			Quantity:     c.TotalQuantity(),
			AveragePrice: c.AveragePrice(),
			Outcome:      string(c.Outcome()),
		}
		if c.Exit != nil {
			r.ExitDate = c.Exit.Date
			r.ExitPrice = c.Exit.ExitPrice
			r.Pnl = c.Exit.RealizedPnl
		}
		records = append(records, r)
	}

	points := make([]db.EquityRecord, len(res.Equity))
	for i, p := range res.Equity {
		points[i] = db.EquityRecord{
			RunID:             cfg.RunID,
			Symbol:            cfg.Symbol,
			Seq:               i + 1,
			Date:              p.Date,
			CyclePnl:          p.CyclePnl,
			CumulativeCapital: p.CumulativeCapital,
			IsProfit:          p.IsProfit,
		}
	}

	tx, err := storage.GetDB().Begin()
	if err != nil {
		return err
	}
	txCtx := db.WithTransaction(ctx, tx)

	if err := storage.SaveCycles(txCtx, records); err != nil {
		tx.Rollback()
		return err
	}
	if err := storage.SaveEquityPoints(txCtx, points); err != nil {
		tx.Rollback()
		return err
	}
	if err := storage.LogEvent(txCtx, journal.Event{
		Time:        time.Now().UTC(),
		Type:        "backtest",
		Description: "run_completed",
		Data: map[string]any{
			"run_id":        cfg.RunID,
			"symbol":        cfg.Symbol,
			"cycles":        len(res.Cycles),
			"final_capital": res.FinalCapital,
		},
	}); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

func runMigrations(ctx context.Context, connStr string) error {
	logger := utils.GetLogger()
	logger.Info("Main | Running database migrations...")

	// Parse connection string to extract database name
	u, err := url.Parse(connStr)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name not found in connection string")
	}

	// Connect to the postgres database to create ours if needed
	baseConnStr := fmt.Sprintf("postgres://%s:%s@%s/postgres%s",
		u.User.Username(),
		func() string {
			p, _ := u.User.Password()
			return p
		}(),
		u.Host,
		func() string {
			if u.RawQuery != "" {
				return "?" + u.RawQuery
			}
			return ""
		}())

	baseDB, err := sql.Open("postgres", baseConnStr)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer baseDB.Close()

	var exists bool
	err = baseDB.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if !exists {
		logger.Infof("Main | Creating database %s...", dbName)
		_, err = baseDB.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", pq.QuoteIdentifier(dbName)))
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
	}

	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer sqlDB.Close()

	schemaSQL, err := os.ReadFile("scripts/schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema.sql: %w", err)
	}

	logger.Info("Main | Database migrations completed successfully")
	return nil
}
