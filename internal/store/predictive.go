package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// PredictiveReportRepository persists walk-forward/Monte-Carlo reports.
type PredictiveReportRepository struct {
	db *DB
}

// NewPredictiveReportRepository constructs a PredictiveReportRepository.
func NewPredictiveReportRepository(db *DB) *PredictiveReportRepository {
	return &PredictiveReportRepository{db: db}
}

// Insert appends a new PredictiveReport row.
func (r *PredictiveReportRepository) Insert(ctx context.Context, p types.PredictiveReport) error {
	metaJSON, _ := json.Marshal(p.Meta)
	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO predictive_reports
			(id, symbol, timeframe, wf_sharpe, wf_winrate, wf_avg_return, mc_max_dd,
			 mc_var_95, drift_score, stability_score, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Symbol, p.Timeframe, p.WFSharpe.String(), p.WFWinRate.String(), p.WFAvgReturn.String(),
		p.MCMaxDD.String(), p.MCVaR95.String(), p.DriftScore.String(), p.StabilityScore.String(),
		string(metaJSON), p.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: inserting predictive report: %w", err)
	}
	return nil
}

// Latest returns the most recent PredictiveReport for (symbol, timeframe), or
// sql.ErrNoRows if none exists.
func (r *PredictiveReportRepository) Latest(ctx context.Context, symbol, timeframe string) (*types.PredictiveReport, error) {
	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, symbol, timeframe, wf_sharpe, wf_winrate, wf_avg_return, mc_max_dd,
		       mc_var_95, drift_score, stability_score, meta, created_at
		FROM predictive_reports
		WHERE symbol = ? AND timeframe = ?
		ORDER BY created_at DESC LIMIT 1
	`, symbol, timeframe)
	return scanPredictiveReport(row)
}

func scanPredictiveReport(row *sql.Row) (*types.PredictiveReport, error) {
	var p types.PredictiveReport
	var sharpe, winrate, avgReturn, maxDD, var95, drift, stability, metaJSON string
	var createdMs int64
	if err := row.Scan(&p.ID, &p.Symbol, &p.Timeframe, &sharpe, &winrate, &avgReturn, &maxDD,
		&var95, &drift, &stability, &metaJSON, &createdMs); err != nil {
		return nil, err
	}
	p.WFSharpe = mustDecimal(sharpe)
	p.WFWinRate = mustDecimal(winrate)
	p.WFAvgReturn = mustDecimal(avgReturn)
	p.MCMaxDD = mustDecimal(maxDD)
	p.MCVaR95 = mustDecimal(var95)
	p.DriftScore = mustDecimal(drift)
	p.StabilityScore = mustDecimal(stability)
	p.CreatedAt = msToTime(createdMs)
	_ = json.Unmarshal([]byte(metaJSON), &p.Meta)
	return &p, nil
}
