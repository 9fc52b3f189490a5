package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
)

// CandleRepository persists and reads OHLCV candles.
type CandleRepository struct {
	db *DB
}

// NewCandleRepository constructs a CandleRepository over the given database.
func NewCandleRepository(db *DB) *CandleRepository {
	return &CandleRepository{db: db}
}

// Insert writes the given candles idempotently on the (symbol, timeframe, time)
// primary key and returns the number of rows that did not already exist.
func (r *CandleRepository) Insert(ctx context.Context, candles []types.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin candle insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, time) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("store: preparing candle insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, c := range candles {
		res, err := stmt.ExecContext(ctx, c.Symbol, c.Timeframe, c.Time.UnixMilli(),
			c.Open.String(), c.High.String(), c.Low.String(), c.Close.String(), c.Volume.String())
		if err != nil {
			return 0, fmt.Errorf("store: inserting candle: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: committing candle insert: %w", err)
	}
	return inserted, nil
}

// Recent returns the most recent `limit` candles for (symbol, timeframe),
// ordered ascending by time.
func (r *CandleRepository) Recent(ctx context.Context, symbol, timeframe string, limit int) ([]types.Candle, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT symbol, timeframe, time, open, high, low, close, volume
		FROM (
			SELECT * FROM candles
			WHERE symbol = ? AND timeframe = ?
			ORDER BY time DESC
			LIMIT ?
		) ORDER BY time ASC
	`, symbol, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying candles: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// Range returns ordered, deduplicated candles for (symbol, timeframe) with
// time in [from, to].
func (r *CandleRepository) Range(ctx context.Context, symbol, timeframe string, fromMs, toMs int64) ([]types.Candle, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT symbol, timeframe, time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND time >= ? AND time <= ?
		ORDER BY time ASC
	`, symbol, timeframe, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("store: querying candle range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

func scanCandles(rows *sql.Rows) ([]types.Candle, error) {
	var out []types.Candle
	for rows.Next() {
		var c types.Candle
		var timeMs int64
		var open, high, low, closeP, volume string
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &timeMs, &open, &high, &low, &closeP, &volume); err != nil {
			return nil, fmt.Errorf("store: scanning candle: %w", err)
		}
		c.Time = msToTime(timeMs)
		c.Open = mustDecimal(open)
		c.High = mustDecimal(high)
		c.Low = mustDecimal(low)
		c.Close = mustDecimal(closeP)
		c.Volume = mustDecimal(volume)
		out = append(out, c)
	}
	return out, rows.Err()
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
