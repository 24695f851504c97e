package db

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jollygold/jollygold/internal/journal"
)

// MemoryStorage is an in-memory Storage used for tests and DB-less runs.
type MemoryStorage struct {
	mu sync.RWMutex

	// Bars keyed by symbol|date
	bars map[string]Bar

	cycles       []CycleRecord
	nextCycleID  int64
	equityPoints []EquityRecord

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		bars:   make(map[string]Bar),
		events: make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

// -------- BarStorage --------

func barKey(symbol string, date time.Time) string {
	return strings.ToUpper(symbol) + "|" + date.UTC().Format("2006-01-02")
}

func (m *MemoryStorage) SaveBars(ctx context.Context, bars []Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range bars {
		if err := bars[i].Validate(); err != nil {
			return err
		}
		bars[i].Date = bars[i].Date.UTC()
		m.bars[barKey(bars[i].Symbol, bars[i].Date)] = bars[i]
	}
	return nil
}

func (m *MemoryStorage) GetBars(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []Bar
	for _, b := range m.bars {
		if !strings.EqualFold(b.Symbol, symbol) {
			continue
		}
		if !start.IsZero() && b.Date.Before(start) {
			continue
		}
		if !end.IsZero() && b.Date.After(end) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStorage) GetLatestBar(ctx context.Context, symbol string) (*Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *Bar
	for _, b := range m.bars {
		if !strings.EqualFold(b.Symbol, symbol) {
			continue
		}
		if latest == nil || b.Date.After(latest.Date) {
			bb := b
			latest = &bb
		}
	}
	return latest, nil
}

func (m *MemoryStorage) DeleteBars(ctx context.Context, symbol string, before time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	before = before.UTC()
	for k, b := range m.bars {
		if strings.EqualFold(b.Symbol, symbol) && b.Date.Before(before) {
			delete(m.bars, k)
		}
	}
	return nil
}

// -------- ResultStorage --------

func (m *MemoryStorage) SaveCycles(ctx context.Context, records []CycleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, r := range records {
		m.nextCycleID++
		r.ID = m.nextCycleID
		r.CreatedAt = now
		m.cycles = append(m.cycles, r)
	}
	return nil
}

func (m *MemoryStorage) GetCycles(ctx context.Context, symbol string, start, end time.Time) ([]CycleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []CycleRecord
	for _, r := range m.cycles {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		if !start.IsZero() && r.StartDate.Before(start.UTC()) {
			continue
		}
		if !end.IsZero() && r.StartDate.After(end.UTC()) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RunID == out[j].RunID {
			return out[i].Seq < out[j].Seq
		}
		return out[i].RunID < out[j].RunID
	})
	return out, nil
}

func (m *MemoryStorage) SaveEquityPoints(ctx context.Context, points []EquityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equityPoints = append(m.equityPoints, points...)
	return nil
}

func (m *MemoryStorage) GetEquityPoints(ctx context.Context, symbol, runID string) ([]EquityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []EquityRecord
	for _, p := range m.equityPoints {
		if !strings.EqualFold(p.Symbol, symbol) {
			continue
		}
		if runID != "" && p.RunID != runID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// -------- JournalStorage --------

func (m *MemoryStorage) LogEvent(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Time = event.Time.UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) GetEvents(ctx context.Context, eventType string, start, end time.Time) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start = start.UTC()
	end = end.UTC()
	var out []journal.Event
	for _, e := range m.events {
		if e.Type == eventType && (e.Time.Equal(start) || e.Time.After(start)) && e.Time.Before(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}
