package predictive_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/predictive"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedExecutions(t *testing.T, repo *store.ExecutionEventRepository, symbol string, n int) {
	t.Helper()
	base := time.Now().Add(-time.Duration(n) * time.Minute)
	for i := 0; i < n; i++ {
		slip := decimal.NewFromFloat(0.1)
		if i%3 == 0 {
			slip = decimal.NewFromFloat(-0.3)
		}
		evt := types.ExecutionEvent{
			ID:              fmt.Sprintf("%s-evt-%d", symbol, i),
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			UserID:          "u1",
			Source:          types.SourceEngine,
			Symbol:          symbol,
			Side:            types.OrderSideBuy,
			Volume:          decimal.NewFromFloat(0.1),
			RequestedPrice:  decimal.NewFromFloat(2400),
			SL:              decimal.NewFromFloat(2390),
			TP:              decimal.NewFromFloat(2420),
			Status:          types.ExecStatusSuccess,
			BridgeConnected: true,
			Slippage:        &slip,
		}
		require.NoError(t, repo.Insert(context.Background(), evt))
	}
}

func TestRunBelowMinimumSizeYieldsZeroedMetrics(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "predictive.db"))
	require.NoError(t, err)
	defer db.Close()

	executions := store.NewExecutionEventRepository(db)
	reports := store.NewPredictiveReportRepository(db)
	seedExecutions(t, executions, "XAUUSD", 10)

	gen := predictive.New(zap.NewNop(), executions, reports)
	report, err := gen.Run(context.Background(), "XAUUSD", "M15")
	require.NoError(t, err)
	require.True(t, report.WFSharpe.IsZero())
	require.True(t, report.DriftScore.IsZero())
}

func TestRunWithEnoughHistoryComputesStability(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "predictive.db"))
	require.NoError(t, err)
	defer db.Close()

	executions := store.NewExecutionEventRepository(db)
	reports := store.NewPredictiveReportRepository(db)
	seedExecutions(t, executions, "XAUUSD", 150)

	gen := predictive.New(zap.NewNop(), executions, reports)
	report, err := gen.Run(context.Background(), "XAUUSD", "M15")
	require.NoError(t, err)
	require.False(t, report.WFSharpe.IsZero())
	require.Equal(t, 150, report.Meta["trades"])

	stored, err := reports.Latest(context.Background(), "XAUUSD", "M15")
	require.NoError(t, err)
	require.Equal(t, report.ID, stored.ID)
}

func TestRunIsolatesBySymbol(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "predictive.db"))
	require.NoError(t, err)
	defer db.Close()

	executions := store.NewExecutionEventRepository(db)
	reports := store.NewPredictiveReportRepository(db)
	seedExecutions(t, executions, "XAUUSD", 80)
	seedExecutions(t, executions, "EURUSD", 5)

	gen := predictive.New(zap.NewNop(), executions, reports)
	report, err := gen.Run(context.Background(), "EURUSD", "M15")
	require.NoError(t, err)
	require.Equal(t, 5, report.Meta["trades"])
}
