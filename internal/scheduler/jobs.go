package scheduler

import (
	"context"
	"fmt"

	"github.com/atlas-desktop/aurum-control-plane/internal/broker"
	"github.com/atlas-desktop/aurum-control-plane/internal/dxy"
	"github.com/atlas-desktop/aurum-control-plane/internal/events"
	"github.com/atlas-desktop/aurum-control-plane/internal/execution"
	"github.com/atlas-desktop/aurum-control-plane/internal/governance"
	"github.com/atlas-desktop/aurum-control-plane/internal/ingest"
	"github.com/atlas-desktop/aurum-control-plane/internal/predictive"
	"github.com/atlas-desktop/aurum-control-plane/internal/scanner"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/atlas-desktop/aurum-control-plane/pkg/utils"
	"github.com/shopspring/decimal"
)

// autoSelectBaseRisk is the fixed fraction of the system balance risked per
// auto-selected trade; see pkg/utils.CalculatePositionSize.
var autoSelectBaseRisk = decimal.NewFromFloat(0.02)
var autoSelectMaxLots = decimal.NewFromFloat(1.0)

// JobSet wires the concrete scheduler jobs against the rest of the pipeline.
type JobSet struct {
	bus        *events.Bus
	ingest     *ingest.Service
	scanner    *scanner.Scanner
	dxy        *dxy.Service
	predictive *predictive.Generator
	governance *governance.Governance
	executor   *execution.Executor
	bridge     *broker.Client
	signals    *store.SignalRepository
	settings   *settings.Service
}

// NewJobSet constructs the job set used by cmd/server to register the
// scheduler's periodic work.
func NewJobSet(
	bus *events.Bus,
	ingestSvc *ingest.Service,
	scannerSvc *scanner.Scanner,
	dxySvc *dxy.Service,
	predictiveSvc *predictive.Generator,
	gov *governance.Governance,
	executor *execution.Executor,
	bridge *broker.Client,
	signals *store.SignalRepository,
	settingsSvc *settings.Service,
) *JobSet {
	return &JobSet{
		bus:        bus,
		ingest:     ingestSvc,
		scanner:    scannerSvc,
		dxy:        dxySvc,
		predictive: predictiveSvc,
		governance: gov,
		executor:   executor,
		bridge:     bridge,
		signals:    signals,
		settings:   settingsSvc,
	}
}

// IngestAndScan fetches the latest candles for the universe, runs a scan,
// and publishes a summary on the Activity Bus.
func (j *JobSet) IngestAndScan(ctx context.Context) error {
	universe := scanner.ParseUniverse(j.settings.GetString(ctx, settings.KeyScannerUniverseJSON))

	inserted, err := j.ingest.IngestUniverse(ctx, universe)
	if err != nil {
		return fmt.Errorf("scheduler: ingest_and_scan: %w", err)
	}

	systemUser := j.settings.GetString(ctx, settings.KeyAutoSelectSystemUserID)
	results, err := j.scanner.Scan(ctx, systemUser)
	if err != nil {
		return fmt.Errorf("scheduler: ingest_and_scan: scan: %w", err)
	}

	j.bus.PublishType("scan_completed", map[string]any{
		"candles_inserted": inserted,
		"signals":          len(results),
	})
	return nil
}

// RefreshDXYContext triggers a DXY context refresh; the service internally
// no-ops if DXY_REFRESH_SECONDS has not elapsed.
func (j *JobSet) RefreshDXYContext(ctx context.Context) error {
	if err := j.dxy.Refresh(ctx); err != nil {
		j.bus.PublishType("dxy_refresh_failed", map[string]any{"error": err.Error()})
		return fmt.Errorf("scheduler: refresh_dxy_context: %w", err)
	}
	if snapshot, ok := j.dxy.Current(); ok {
		j.bus.PublishType("dxy_context_updated", snapshot)
	}
	return nil
}

// ScannerAutoSelect consults governance and, on allow, executes the best
// eligible scanner signal for the configured system user.
func (j *JobSet) ScannerAutoSelect(ctx context.Context) error {
	systemUser := j.settings.GetString(ctx, settings.KeyAutoSelectSystemUserID)
	bridgeConnected := j.bridge != nil && j.bridge.Connected()

	decision := j.governance.PreTradeGate(ctx, systemUser, bridgeConnected, true)
	if !decision.Allow {
		j.bus.PublishType("auto_select_blocked", map[string]any{"reason": decision.Reason})
		return nil
	}

	minScore := j.settings.GetFloat(ctx, settings.KeyAutoSelectMinScore)
	minConfidence := j.settings.GetFloat(ctx, settings.KeyAutoSelectMinConfidence)

	candidates, err := j.signals.EligibleForAutoSelect(ctx, minScore, minConfidence, "", "")
	if err != nil {
		return fmt.Errorf("scheduler: scanner_auto_select: %w", err)
	}
	if len(candidates) == 0 {
		j.bus.PublishType("auto_select_no_candidate", nil)
		return nil
	}

	best := candidates[0]
	side, ok := sideForAction(best.Action)
	if !ok {
		j.bus.PublishType("auto_select_skipped", map[string]any{"signal_id": best.ID, "action": best.Action})
		return nil
	}

	balance := decimal.NewFromFloat(j.settings.GetFloat(ctx, settings.KeyAutoSelectSystemBalance))
	volume := utils.CalculatePositionSize(balance, best.EntryPrice, best.SuggestedSL, autoSelectBaseRisk, autoSelectMaxLots)

	event, err := j.executor.Execute(ctx, execution.Request{
		Source:         types.SourceScanner,
		UserID:         systemUser,
		Symbol:         best.Symbol,
		Side:           side,
		Volume:         volume,
		SL:             best.SuggestedSL,
		TP:             best.SuggestedTP,
		RequestedPrice: best.EntryPrice,
	})
	if err != nil {
		return fmt.Errorf("scheduler: scanner_auto_select: execute: %w", err)
	}

	j.bus.PublishType("auto_select_executed", map[string]any{
		"signal_id": best.ID,
		"symbol":    best.Symbol,
		"status":    event.Status,
	})
	return nil
}

// PredictiveRun recomputes the predictive report for every universe symbol.
func (j *JobSet) PredictiveRun(ctx context.Context) error {
	universe := scanner.ParseUniverse(j.settings.GetString(ctx, settings.KeyScannerUniverseJSON))

	for _, sym := range universe.Symbols {
		for _, tf := range universe.Timeframes {
			report, err := j.predictive.Run(ctx, sym.Symbol, tf)
			if err != nil {
				j.bus.PublishType("predictive_run_failed", map[string]any{
					"symbol": sym.Symbol, "timeframe": tf, "error": err.Error(),
				})
				continue
			}
			j.bus.PublishType("predictive_report", map[string]any{
				"symbol": report.Symbol, "timeframe": report.Timeframe,
				"stability_score": report.StabilityScore.String(),
			})
		}
	}
	return nil
}

// TrainModels is a scheduling placeholder: model training happens in an
// external pipeline that writes rows into model_registry; the core only
// needs the job slot to exist so operators can see it in the schedule.
func (j *JobSet) TrainModels(ctx context.Context) error {
	j.bus.PublishType("train_models_noop", nil)
	return nil
}

func sideForAction(action types.SignalAction) (types.OrderSide, bool) {
	switch action {
	case types.ActionBuy, types.ActionStrongBuy:
		return types.OrderSideBuy, true
	case types.ActionSell, types.ActionStrongSell:
		return types.OrderSideSell, true
	default:
		return "", false
	}
}
