package store

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// PositionRepository upserts the latest MT5 position snapshot per (account, ticket).
type PositionRepository struct {
	db *DB
}

// NewPositionRepository constructs a PositionRepository.
func NewPositionRepository(db *DB) *PositionRepository {
	return &PositionRepository{db: db}
}

// Upsert writes the latest snapshot for (AccountID, Ticket); never removed by the core.
func (r *PositionRepository) Upsert(ctx context.Context, p types.MT5PositionSnapshot) error {
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO mt5_position_snapshots
			(account_id, ticket, side, volume, open_price, sl, tp, profit, swap, commission, open_time, magic, comment, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, ticket) DO UPDATE SET
			side = excluded.side, volume = excluded.volume, open_price = excluded.open_price,
			sl = excluded.sl, tp = excluded.tp, profit = excluded.profit, swap = excluded.swap,
			commission = excluded.commission, updated_at = excluded.updated_at
	`, p.AccountID, p.Ticket, string(p.Side), p.Volume.String(), p.OpenPrice.String(), p.SL.String(),
		p.TP.String(), p.Profit.String(), p.Swap.String(), p.Commission.String(),
		p.OpenTime.UnixMilli(), p.Magic, p.Comment, p.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upserting position snapshot: %w", err)
	}
	return nil
}

// ByAccount returns every known snapshot for an account.
func (r *PositionRepository) ByAccount(ctx context.Context, accountID string) ([]types.MT5PositionSnapshot, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT account_id, ticket, side, volume, open_price, sl, tp, profit, swap, commission, open_time, magic, comment, updated_at
		FROM mt5_position_snapshots WHERE account_id = ?
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: querying positions: %w", err)
	}
	defer rows.Close()

	var out []types.MT5PositionSnapshot
	for rows.Next() {
		var p types.MT5PositionSnapshot
		var side, volume, openPrice, sl, tp, profit, swap, commission string
		var openTimeMs, updatedMs int64
		if err := rows.Scan(&p.AccountID, &p.Ticket, &side, &volume, &openPrice, &sl, &tp,
			&profit, &swap, &commission, &openTimeMs, &p.Magic, &p.Comment, &updatedMs); err != nil {
			return nil, fmt.Errorf("store: scanning position: %w", err)
		}
		p.Side = types.OrderSide(side)
		p.Volume = mustDecimal(volume)
		p.OpenPrice = mustDecimal(openPrice)
		p.SL = mustDecimal(sl)
		p.TP = mustDecimal(tp)
		p.Profit = mustDecimal(profit)
		p.Swap = mustDecimal(swap)
		p.Commission = mustDecimal(commission)
		p.OpenTime = msToTime(openTimeMs)
		p.UpdatedAt = msToTime(updatedMs)
		out = append(out, p)
	}
	return out, rows.Err()
}
