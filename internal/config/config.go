// Package config
package config

import (
	"flag"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jollygold/jollygold/internal/strategy"
)

/*
YAML config example:
mode: "continuous"
symbol: "GOLD"
data_file: "gold_daily.xlsx"
db_conn_str: "host=localhost port=5432 user=postgres dbname=jollygold sslmode=disable"
db_max_open: 10
db_max_idle: 5
from: "2015-01-01"
to: "2024-12-31"
initial_capital: 100000
ledger_csv: "ledger.csv"
equity_csv: "equity.csv"
strategy:
  lot_sizes: [6, 4, 6, 6, 6]
  gap_percents: [0, 1, 1.5, 2, 2.5]
  profit_target_percent: 1.0
  exit_policy:
    kind: "expiry"
  restart_offset: 5
*/

type Config struct {
	Mode           string    `yaml:"mode"`
	Symbol         string    `yaml:"symbol"`
	DataFile       string    `yaml:"data_file"`
	Sheet          string    `yaml:"sheet"`
	WallexAPIKey   string    `yaml:"wallex_api_key"`
	DBConnStr      string    `yaml:"db_conn_str"`
	DBMaxOpen      int       `yaml:"db_max_open"`
	DBMaxIdle      int       `yaml:"db_max_idle"`
	RunMigration   bool      `yaml:"run_migration"`
	From           time.Time `yaml:"-"`
	To             time.Time `yaml:"-"`
	FromStr        string    `yaml:"from"`
	ToStr          string    `yaml:"to"`
	InitialCapital float64   `yaml:"initial_capital"`
	LedgerCSV      string    `yaml:"ledger_csv"`
	EquityCSV      string    `yaml:"equity_csv"`
	RunID          string    `yaml:"run_id"`

	Strategy strategy.Config `yaml:"strategy"`
}

func loadConfig() (Config, error) {
	mode := flag.String("mode", "continuous", "Mode: single or continuous")
	symbol := flag.String("symbol", "GOLD", "Instrument symbol")
	dataFile := flag.String("data-file", "", "Path to CSV or XLSX bar file")
	sheet := flag.String("sheet", "", "XLSX sheet name (first sheet when empty)")
	from := flag.String("from", "", "Start date (YYYY-MM-DD), first bar when empty")
	to := flag.String("to", "", "End date (YYYY-MM-DD), last bar when empty")
	initialCapital := flag.Float64("initial-capital", 100000, "Starting capital for the equity curve")
	ledgerCSV := flag.String("ledger-csv", "", "Path for the ledger CSV export")
	equityCSV := flag.String("equity-csv", "", "Path for the equity-curve CSV export")
	runID := flag.String("run-id", "", "Run identifier for persisted results")
	runMigration := flag.Bool("migrate", false, "Apply the database schema before running")
	lotSizes := flag.String("lot-sizes", "", "Comma-separated lot sizes per leg (e.g., 6,4,6,6,6)")
	gapPercents := flag.String("gap-percents", "", "Comma-separated gap percents per leg (e.g., 0,1,1.5,2,2.5)")
	profitTarget := flag.Float64("profit-target", 1.0, "Profit target percent above average price")
	exitPolicy := flag.String("exit-policy", "expiry", "Exit policy: expiry or time-limit")
	timeLimitDays := flag.Int("time-limit-days", 60, "Calendar days before forced exit (time-limit policy)")
	restartOffset := flag.Float64("restart-offset", 5, "Points added to the exit price to seed the next cycle")
	gapRoundTo := flag.Float64("gap-round-to", 0, "Round gap offsets up to the nearest N points (0 disables)")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, err
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, err
		}
		if fileCfg.Strategy.LegCount() == 0 {
			fileCfg.Strategy = strategy.DefaultConfig()
		}
		if fileCfg.WallexAPIKey == "" {
			fileCfg.WallexAPIKey = os.Getenv("WALLEX_API_KEY")
		}
		if fileCfg.DBConnStr == "" {
			fileCfg.DBConnStr = os.Getenv("DB_CONN_STR")
		}
		return fileCfg.withParsedDates()
	}

	strat := strategy.DefaultConfig()
	if *lotSizes != "" {
		sizes, err := parseInts(*lotSizes)
		if err != nil {
			return Config{}, err
		}
		strat.LotSizes = sizes
	}
	if *gapPercents != "" {
		gaps, err := parseFloats(*gapPercents)
		if err != nil {
			return Config{}, err
		}
		strat.GapPercents = gaps
	}
	strat.ProfitTargetPercent = *profitTarget
	strat.Policy = strategy.ExitPolicy{
		Kind:          strategy.PolicyKind(*exitPolicy),
		TimeLimitDays: *timeLimitDays,
	}
	strat.RestartOffset = *restartOffset
	strat.GapRoundTo = *gapRoundTo

	cfg := Config{
		Mode:           *mode,
		Symbol:         *symbol,
		DataFile:       *dataFile,
		Sheet:          *sheet,
		WallexAPIKey:   os.Getenv("WALLEX_API_KEY"),
		DBConnStr:      os.Getenv("DB_CONN_STR"),
		DBMaxOpen:      10,
		DBMaxIdle:      5,
		RunMigration:   *runMigration,
		FromStr:        *from,
		ToStr:          *to,
		InitialCapital: *initialCapital,
		LedgerCSV:      *ledgerCSV,
		EquityCSV:      *equityCSV,
		RunID:          *runID,
		Strategy:       strat,
	}
	return cfg.withParsedDates()
}

func (c Config) withParsedDates() (Config, error) {
	var err error
	if c.FromStr != "" {
		c.From, err = time.Parse("2006-01-02", c.FromStr)
		if err != nil {
			return Config{}, err
		}
	}
	if c.ToStr != "" {
		c.To, err = time.Parse("2006-01-02", c.ToStr)
		if err != nil {
			return Config{}, err
		}
	}
	if c.RunID == "" {
		c.RunID = time.Now().UTC().Format("run-20060102-150405")
	}
	return c, nil
}

// MustLoadConfig loads configuration from flags and the optional YAML file,
// exiting on invalid input.
func MustLoadConfig() Config {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Strategy.Validate(); err != nil {
		log.Fatalf("Invalid strategy config: %v", err)
	}
	if cfg.Mode != "single" && cfg.Mode != "continuous" {
		log.Fatalf("Invalid mode %q: expected single or continuous", cfg.Mode)
	}
	return cfg
}

func parseInts(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
