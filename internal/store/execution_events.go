package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// ExecutionEventRepository persists the append-only execution audit log.
type ExecutionEventRepository struct {
	db *DB
}

// NewExecutionEventRepository constructs an ExecutionEventRepository.
func NewExecutionEventRepository(db *DB) *ExecutionEventRepository {
	return &ExecutionEventRepository{db: db}
}

// Insert appends one ExecutionEvent. Every order attempt produces exactly one row.
func (r *ExecutionEventRepository) Insert(ctx context.Context, e types.ExecutionEvent) error {
	reqJSON, _ := json.Marshal(e.Request)
	respJSON, _ := json.Marshal(e.Response)

	var fillPrice, slippage sql.NullString
	if e.FillPrice != nil {
		fillPrice = sql.NullString{String: e.FillPrice.String(), Valid: true}
	}
	if e.Slippage != nil {
		slippage = sql.NullString{String: e.Slippage.String(), Valid: true}
	}
	var latencyMs sql.NullInt64
	if e.LatencyMs != nil {
		latencyMs = sql.NullInt64{Int64: *e.LatencyMs, Valid: true}
	}

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO execution_events
			(id, created_at, user_id, source, symbol, side, volume, requested_price,
			 sl, tp, status, ticket, fill_price, slippage, latency_ms, bridge_connected,
			 error, request, response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.CreatedAt.UnixMilli(), e.UserID, string(e.Source), e.Symbol, string(e.Side),
		e.Volume.String(), e.RequestedPrice.String(), e.SL.String(), e.TP.String(), string(e.Status),
		e.Ticket, fillPrice, slippage, latencyMs, boolToInt(e.BridgeConnected), e.Error,
		string(reqJSON), string(respJSON))
	if err != nil {
		return fmt.Errorf("store: inserting execution event: %w", err)
	}
	return nil
}

// CountInWindow counts executions for userID in the last windowMs milliseconds
// before nowMs, used by the rate limiter.
func (r *ExecutionEventRepository) CountInWindow(ctx context.Context, userID string, nowMs, windowMs int64) (int, error) {
	var n int
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM execution_events
		WHERE user_id = ? AND created_at >= ?
	`, userID, nowMs-windowMs).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting execution events: %w", err)
	}
	return n, nil
}

// CountStatusInWindow counts events whose status is one of statuses in the
// last windowMs milliseconds before nowMs, regardless of user.
func (r *ExecutionEventRepository) CountStatusInWindow(ctx context.Context, nowMs, windowMs int64, statuses ...types.ExecutionStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	for i, s := range statuses {
		placeholders[i] = "?"
		args = append(args, string(s))
	}
	args = append(args, nowMs-windowMs)

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM execution_events
		WHERE status IN (%s) AND created_at >= ?
	`, strings.Join(placeholders, ", "))

	var n int
	if err := r.db.Conn().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: counting status events: %w", err)
	}
	return n, nil
}

// RecentSuccessfulBySymbol returns the most recent successful fills for a
// symbol, oldest first, for use as a realized-outcome series.
func (r *ExecutionEventRepository) RecentSuccessfulBySymbol(ctx context.Context, symbol string, limit int) ([]types.ExecutionEvent, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT id, created_at, user_id, source, symbol, side, volume, requested_price,
		       sl, tp, status, ticket, fill_price, slippage, latency_ms, bridge_connected, error
		FROM execution_events
		WHERE symbol = ? AND status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, symbol, string(types.ExecStatusSuccess), limit)
	if err != nil {
		return nil, fmt.Errorf("store: querying successful executions: %w", err)
	}
	defer rows.Close()

	var out []types.ExecutionEvent
	for rows.Next() {
		var e types.ExecutionEvent
		var createdMs int64
		var sourceStr, sideStr, statusStr string
		var volume, requestedPrice, sl, tp string
		var fillPrice, slippage sql.NullString
		var latencyMs sql.NullInt64
		var bridgeConnected int
		if err := rows.Scan(&e.ID, &createdMs, &e.UserID, &sourceStr, &e.Symbol, &sideStr, &volume,
			&requestedPrice, &sl, &tp, &statusStr, &e.Ticket, &fillPrice, &slippage, &latencyMs,
			&bridgeConnected, &e.Error); err != nil {
			return nil, fmt.Errorf("store: scanning execution event: %w", err)
		}
		e.CreatedAt = msToTime(createdMs)
		e.Source = types.SignalSource(sourceStr)
		e.Side = types.OrderSide(sideStr)
		e.Status = types.ExecutionStatus(statusStr)
		e.Volume = mustDecimal(volume)
		e.RequestedPrice = mustDecimal(requestedPrice)
		e.SL = mustDecimal(sl)
		e.TP = mustDecimal(tp)
		e.BridgeConnected = bridgeConnected != 0
		if fillPrice.Valid {
			d := mustDecimal(fillPrice.String)
			e.FillPrice = &d
		}
		if slippage.Valid {
			d := mustDecimal(slippage.String)
			e.Slippage = &d
		}
		if latencyMs.Valid {
			e.LatencyMs = &latencyMs.Int64
		}
		out = append(out, e)
	}

	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
