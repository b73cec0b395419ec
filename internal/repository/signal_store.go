// Package repository persists price bars and generated signals in
// ClickHouse for offline research queries.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/Alwyn-Tan/dma-strategy-backend/internal/strategy"
	pkgch "github.com/Alwyn-Tan/dma-strategy-backend/pkg/clickhouse"
	applogger "github.com/Alwyn-Tan/dma-strategy-backend/pkg/logger"
)

const (
	pricesTable  = "dma_prices"
	signalsTable = "dma_signals"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ` + pricesTable + ` (
        code   LowCardinality(String),
        date   Date,
        open   Float64,
        high   Float64,
        low    Float64,
        close  Float64,
        volume Float64
    ) ENGINE = ReplacingMergeTree
    ORDER BY (code, date)`,
	`CREATE TABLE IF NOT EXISTS ` + signalsTable + ` (
        code         LowCardinality(String),
        date         Date,
        signal_type  LowCardinality(String),
        price        Float64,
        ma_short     Float64,
        ma_long      Float64,
        short_window UInt16,
        long_window  UInt16,
        created_at   DateTime DEFAULT now()
    ) ENGINE = ReplacingMergeTree
    ORDER BY (code, short_window, long_window, date, signal_type)`,
}

// SignalStore writes bars and signals to ClickHouse.
type SignalStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewSignalStore(ch *pkgch.Client) *SignalStore {
	return &SignalStore{db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *SignalStore) SetLogger(l *applogger.Logger) { s.l = l }

// InitSchema creates the price and signal tables when missing.
func (s *SignalStore) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// SavePrices upserts daily bars for a symbol in chunks.
func (s *SignalStore) SavePrices(ctx context.Context, code string, bars []strategy.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(bars); start += chunkSize {
		end := start + chunkSize
		if end > len(bars) {
			end = len(bars)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*7)
		for _, b := range bars[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?)")
			args = append(args, code, b.Date.Time, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
		q := fmt.Sprintf(
			"INSERT INTO %s (code, date, open, high, low, close, volume) VALUES %s",
			pricesTable, strings.Join(values, ","),
		)
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			if s.l != nil {
				s.l.Error("clickhouse save_prices error",
					applogger.String("code", code),
					applogger.Int("rows", end-start),
					applogger.Error(err),
				)
			}
			return fmt.Errorf("save prices: %w", err)
		}
	}
	return nil
}

// SaveSignals upserts confirmed crossover signals for one window pair.
func (s *SignalStore) SaveSignals(ctx context.Context, code string, shortWindow, longWindow int, signals []strategy.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	values := make([]string, 0, len(signals))
	args := make([]interface{}, 0, len(signals)*8)
	for _, sig := range signals {
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			code,
			sig.Date.Time,
			string(sig.Type),
			sig.Price,
			sig.MAShort,
			sig.MALong,
			uint16(shortWindow),
			uint16(longWindow),
		)
	}
	q := fmt.Sprintf(
		"INSERT INTO %s (code, date, signal_type, price, ma_short, ma_long, short_window, long_window) VALUES %s",
		signalsTable, strings.Join(values, ","),
	)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse save_signals error",
				applogger.String("code", code),
				applogger.Int("rows", len(signals)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("save signals: %w", err)
	}
	return nil
}

// LatestSignalDate returns the newest stored signal date for a symbol
// and window pair; ok is false when none exists.
func (s *SignalStore) LatestSignalDate(ctx context.Context, code string, shortWindow, longWindow int) (time.Time, bool, error) {
	const q = `
        SELECT max(date)
        FROM ` + signalsTable + `
        WHERE code = ? AND short_window = ? AND long_window = ?
    `
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx, q, code, uint16(shortWindow), uint16(longWindow)).Scan(&latest)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("latest signal date: %w", err)
	}
	if !latest.Valid || latest.Time.IsZero() {
		return time.Time{}, false, nil
	}
	return latest.Time.UTC(), true, nil
}

// Health pings the database.
func (s *SignalStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
