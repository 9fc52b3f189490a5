package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TWAPPlan splits Volume into Slices sequential orders, pausing
// Interval between each, so a single large position does not move the
// market (or the broker's own fill book) all at once.
type TWAPPlan struct {
	Request
	Slices   int
	Interval time.Duration
}

// RunTWAP executes a TWAPPlan slice by slice, stopping at the first blocked
// or error event and returning everything recorded so far.
func (e *Executor) RunTWAP(ctx context.Context, plan TWAPPlan) ([]*types.ExecutionEvent, error) {
	if plan.Slices < 1 {
		return nil, fmt.Errorf("execution: twap requires at least 1 slice, got %d", plan.Slices)
	}

	sliceVolume := plan.Volume.Div(decimal.NewFromInt(int64(plan.Slices)))
	events := make([]*types.ExecutionEvent, 0, plan.Slices)

	for i := 0; i < plan.Slices; i++ {
		req := plan.Request
		req.Volume = sliceVolume

		event, err := e.Execute(ctx, req)
		if err != nil {
			return events, fmt.Errorf("execution: twap slice %d/%d: %w", i+1, plan.Slices, err)
		}
		events = append(events, event)

		if event.Status == types.ExecStatusBlocked || event.Status == types.ExecStatusError {
			e.logger.Warn("twap aborted on slice failure",
				zap.String("symbol", req.Symbol), zap.Int("slice", i+1), zap.Int("of", plan.Slices),
				zap.String("status", string(event.Status)))
			break
		}

		if i < plan.Slices-1 && plan.Interval > 0 {
			select {
			case <-ctx.Done():
				return events, ctx.Err()
			case <-time.After(plan.Interval):
			}
		}
	}

	return events, nil
}
