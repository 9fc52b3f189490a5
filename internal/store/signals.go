package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// SignalRepository persists TradingSignal rows.
type SignalRepository struct {
	db *DB
}

// NewSignalRepository constructs a SignalRepository over the given database.
func NewSignalRepository(db *DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// InsertBatch commits every signal in one transaction, matching the scanner's
// "one scan, one commit" ordering guarantee.
func (r *SignalRepository) InsertBatch(ctx context.Context, signals []types.TradingSignal) error {
	if len(signals) == 0 {
		return nil
	}
	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin signal batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trading_signals
			(id, user_id, source, symbol, timeframe, action, confidence, score,
			 entry_price, suggested_sl, suggested_tp, reasons, context, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: preparing signal insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range signals {
		reasonsJSON, _ := json.Marshal(s.Reasons)
		contextJSON, _ := json.Marshal(s.Context)
		_, err := stmt.ExecContext(ctx, s.ID, s.UserID, string(s.Source), s.Symbol, s.Timeframe,
			string(s.Action), s.Confidence, s.Score, s.EntryPrice.String(), s.SuggestedSL.String(),
			s.SuggestedTP.String(), string(reasonsJSON), string(contextJSON), s.CreatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("store: inserting signal: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: committing signal batch: %w", err)
	}
	return nil
}

// EligibleForAutoSelect returns candidate signals ordered by score desc then
// created_at desc, matching the scanner execution service's best-signal rule.
func (r *SignalRepository) EligibleForAutoSelect(ctx context.Context, minScore, minConfidence float64, symbol, timeframe string) ([]types.TradingSignal, error) {
	q := `
		SELECT id, user_id, source, symbol, timeframe, action, confidence, score,
		       entry_price, suggested_sl, suggested_tp, reasons, context, created_at
		FROM trading_signals
		WHERE source = ?
		  AND action IN ('BUY','SELL','STRONG_BUY','STRONG_SELL')
		  AND score >= ? AND confidence >= ?
	`
	args := []any{string(types.SourceScanner), minScore, minConfidence}
	if symbol != "" {
		q += " AND symbol = ?"
		args = append(args, symbol)
	}
	if timeframe != "" {
		q += " AND timeframe = ?"
		args = append(args, timeframe)
	}
	q += " ORDER BY score DESC, created_at DESC"

	rows, err := r.db.Conn().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: querying eligible signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ByID fetches a single signal.
func (r *SignalRepository) ByID(ctx context.Context, id string) (*types.TradingSignal, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, user_id, source, symbol, timeframe, action, confidence, score,
		       entry_price, suggested_sl, suggested_tp, reasons, context, created_at
		FROM trading_signals WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("store: querying signal by id: %w", err)
	}
	defer rows.Close()
	sigs, err := scanSignals(rows)
	if err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return nil, sql.ErrNoRows
	}
	return &sigs[0], nil
}

func scanSignals(rows *sql.Rows) ([]types.TradingSignal, error) {
	var out []types.TradingSignal
	for rows.Next() {
		var s types.TradingSignal
		var source, action string
		var entry, sl, tp, reasonsJSON, contextJSON string
		var createdMs int64
		if err := rows.Scan(&s.ID, &s.UserID, &source, &s.Symbol, &s.Timeframe, &action,
			&s.Confidence, &s.Score, &entry, &sl, &tp, &reasonsJSON, &contextJSON, &createdMs); err != nil {
			return nil, fmt.Errorf("store: scanning signal: %w", err)
		}
		s.Source = types.SignalSource(source)
		s.Action = types.SignalAction(action)
		s.EntryPrice = mustDecimal(entry)
		s.SuggestedSL = mustDecimal(sl)
		s.SuggestedTP = mustDecimal(tp)
		s.CreatedAt = msToTime(createdMs)
		_ = json.Unmarshal([]byte(reasonsJSON), &s.Reasons)
		_ = json.Unmarshal([]byte(contextJSON), &s.Context)
		out = append(out, s)
	}
	return out, rows.Err()
}
