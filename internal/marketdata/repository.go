// Package marketdata stores and loads OHLCV bars. Bars are keyed by symbol
// and timestamp; loads always return them in ascending time order, which the
// execution simulator depends on.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/SkyNet-coder2025/skynet-trading/internal/database"
	"github.com/SkyNet-coder2025/skynet-trading/internal/domain"
)

// Repository handles bar storage in SQLite.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a bar repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "marketdata").Logger(),
	}
}

// Init creates the bars table if it does not exist.
func (r *Repository) Init(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS bars (
			symbol     TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			open       REAL NOT NULL,
			high       REAL NOT NULL,
			low        REAL NOT NULL,
			close      REAL NOT NULL,
			volume     REAL NOT NULL,
			bid        REAL NOT NULL DEFAULT 0,
			ask        REAL NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timestamp)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create bars table: %w", err)
	}
	return nil
}

// SaveBars upserts a batch of bars for a symbol inside one transaction.
// Re-importing the same file is idempotent.
func (r *Repository) SaveBars(ctx context.Context, symbol string, bars []domain.Bar) error {
	if symbol == "" {
		return domain.NewConfigurationError("symbol", "must not be empty")
	}
	if len(bars) == 0 {
		return nil
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO bars (symbol, timestamp, open, high, low, close, volume, bid, ask)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, timestamp) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				bid = excluded.bid,
				ask = excluded.ask
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, symbol, b.Timestamp.Unix(),
				b.Open, b.High, b.Low, b.Close, b.Volume, b.Bid, b.Ask); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save bars for %s: %w", symbol, err)
	}

	r.log.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("Bars saved")
	return nil
}

// LoadBars fetches all bars for a symbol in ascending time order. A limit of
// zero loads everything; a positive limit keeps only the most recent bars.
func (r *Repository) LoadBars(ctx context.Context, symbol string, limit int) ([]domain.Bar, error) {
	query := `
		SELECT timestamp, open, high, low, close, volume, bid, ask
		FROM bars
		WHERE symbol = ?
		ORDER BY timestamp ASC
	`
	rows, err := r.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Bid, &b.Ask); err != nil {
			return nil, fmt.Errorf("failed to scan bar for %s: %w", symbol, err)
		}
		b.Timestamp = time.Unix(ts, 0).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bars for %s: %w", symbol, err)
	}

	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// Symbols returns all symbols with stored bars.
func (r *Repository) Symbols(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT symbol FROM bars ORDER BY symbol")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// Count returns the number of bars stored for a symbol.
func (r *Repository) Count(ctx context.Context, symbol string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bars WHERE symbol = ?", symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count bars for %s: %w", symbol, err)
	}
	return n, nil
}
