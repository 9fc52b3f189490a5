// Package predictive recomputes walk-forward and Monte-Carlo stability
// metrics from recent execution outcomes, feeding the PredictiveReport that
// governance consults before allowing automated trades.
package predictive

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/atlas-desktop/aurum-control-plane/pkg/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	tradeHistoryLimit  = 4000
	minWalkForwardSize = 60
	minDriftSize       = 120
	monteCarloRuns     = 500
	periodsPerYear     = 252
	mcEquityBase       = 100.0
)

// Generator computes and persists PredictiveReport rows.
type Generator struct {
	logger     *zap.Logger
	executions *store.ExecutionEventRepository
	reports    *store.PredictiveReportRepository
}

// New constructs a Generator.
func New(logger *zap.Logger, executions *store.ExecutionEventRepository, reports *store.PredictiveReportRepository) *Generator {
	return &Generator{logger: logger.Named("predictive"), executions: executions, reports: reports}
}

// Run loads the recent realized-outcome series for (symbol), evaluates
// walk-forward and Monte-Carlo stability metrics, persists the resulting
// PredictiveReport, and returns it.
func (g *Generator) Run(ctx context.Context, symbol, timeframe string) (*types.PredictiveReport, error) {
	events, err := g.executions.RecentSuccessfulBySymbol(ctx, symbol, tradeHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("predictive: loading execution history: %w", err)
	}

	returns := pnlProxy(events)
	wf := walkForwardEval(returns)
	mc := monteCarloEquity(returns)
	drift := detectDrift(returns)
	stability := wf.Sharpe*25.0 + wf.WinRate*100.0 + wf.AvgReturn*10.0 - math.Abs(mc.MaxDD)*0.5 - drift*50.0

	report := types.PredictiveReport{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Timeframe:      timeframe,
		WFSharpe:       decimal.NewFromFloat(wf.Sharpe),
		WFWinRate:      decimal.NewFromFloat(wf.WinRate),
		WFAvgReturn:    decimal.NewFromFloat(wf.AvgReturn),
		MCMaxDD:        decimal.NewFromFloat(mc.MaxDD),
		MCVaR95:        decimal.NewFromFloat(mc.VaR95),
		DriftScore:     decimal.NewFromFloat(drift),
		StabilityScore: decimal.NewFromFloat(stability),
		Meta:           map[string]any{"trades": len(events)},
		CreatedAt:      time.Now().UTC(),
	}

	if err := g.reports.Insert(ctx, report); err != nil {
		return nil, fmt.Errorf("predictive: persisting report: %w", err)
	}

	g.logger.Info("predictive report generated",
		zap.String("symbol", symbol), zap.String("timeframe", timeframe),
		zap.Float64("stability_score", stability), zap.Int("trades", len(events)))

	return &report, nil
}

// pnlProxy approximates a per-trade return from signed execution slippage:
// negative slippage is a favorable fill, so the proxy flips its sign and
// scales by volume.
func pnlProxy(events []types.ExecutionEvent) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, len(events))
	for _, e := range events {
		if e.Slippage == nil {
			continue
		}
		out = append(out, e.Slippage.Neg().Mul(e.Volume))
	}
	return out
}

type walkForwardResult struct {
	Sharpe    float64
	WinRate   float64
	AvgReturn float64
}

// walkForwardEval mirrors the original PredictiveService: Sharpe is the mean
// of returns over their standard deviation, annualized by sqrt(252)
// regardless of sampling frequency.
func walkForwardEval(returns []decimal.Decimal) walkForwardResult {
	if len(returns) < minWalkForwardSize {
		return walkForwardResult{}
	}
	sharpe := utils.CalculateSharpeRatio(returns, decimal.Zero, periodsPerYear)
	winRate := utils.CalculateWinRate(returns)
	avgReturn := utils.CalculateMean(returns)
	return walkForwardResult{
		Sharpe:    sharpe.InexactFloat64(),
		WinRate:   winRate.InexactFloat64(),
		AvgReturn: avgReturn.InexactFloat64(),
	}
}

type monteCarloResult struct {
	MaxDD float64
	VaR95 float64
}

// monteCarloEquity shuffles the return series monteCarloRuns times, building
// a cumulative equity path per run seeded at mcEquityBase (so the
// peak-relative drawdown fraction from utils.CalculateMaxDrawdown is always
// well defined), and reports the median worst drawdown and the 5th
// percentile ending equity (VaR 95%).
func monteCarloEquity(returns []decimal.Decimal) monteCarloResult {
	if len(returns) < minWalkForwardSize {
		return monteCarloResult{}
	}

	base := make([]decimal.Decimal, len(returns))
	copy(base, returns)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	worstDrawdowns := make([]float64, monteCarloRuns)
	endValues := make([]float64, monteCarloRuns)

	shuffled := make([]decimal.Decimal, len(base))
	equity := make([]decimal.Decimal, len(base)+1)
	for run := 0; run < monteCarloRuns; run++ {
		copy(shuffled, base)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		equity[0] = decimal.NewFromFloat(mcEquityBase)
		for i, v := range shuffled {
			equity[i+1] = equity[i].Add(v)
		}

		worstDrawdowns[run] = utils.CalculateMaxDrawdown(equity).InexactFloat64()
		endValues[run] = equity[len(equity)-1].InexactFloat64()
	}

	return monteCarloResult{
		MaxDD: percentile(worstDrawdowns, 50),
		VaR95: percentile(endValues, 5),
	}
}

// detectDrift compares the mean return of the first and second half of the
// series; a large split-mean gap signals the strategy's edge has shifted.
func detectDrift(returns []decimal.Decimal) float64 {
	if len(returns) < minDriftSize {
		return 0
	}
	mid := len(returns) / 2
	a := utils.CalculateMean(returns[:mid])
	b := utils.CalculateMean(returns[mid:])
	return a.Sub(b).Abs().InexactFloat64()
}

func percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(pct/100.0*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
