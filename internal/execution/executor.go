// Package execution sends approved orders to the broker bridge, measures
// latency and slippage, enforces per-order guards, and records one
// ExecutionEvent per attempt.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/broker"
	"github.com/atlas-desktop/aurum-control-plane/internal/governance"
	"github.com/atlas-desktop/aurum-control-plane/internal/metrics"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Request describes one order attempt.
type Request struct {
	Source         types.SignalSource
	UserID         string
	Symbol         string
	Side           types.OrderSide
	Volume         decimal.Decimal
	SL             decimal.Decimal
	TP             decimal.Decimal
	RequestedPrice decimal.Decimal
}

// Executor dispatches orders against the broker bridge in live mode, or
// records a simulated event in every other mode.
type Executor struct {
	logger     *zap.Logger
	settings   *settings.Service
	events     *store.ExecutionEventRepository
	governance *governance.Governance
	bridge     *broker.Client
	metrics    *metrics.Registry
}

// SetMetrics attaches a Prometheus registry. Optional; Execute is a no-op
// on metrics when unset.
func (e *Executor) SetMetrics(m *metrics.Registry) {
	e.metrics = m
}

// New constructs an Executor. bridge may be nil; it is only dereferenced in
// live mode, and Execute falls back to simulated behavior if the bridge is
// not configured.
func New(logger *zap.Logger, settingsSvc *settings.Service, events *store.ExecutionEventRepository, gov *governance.Governance, bridge *broker.Client) *Executor {
	return &Executor{
		logger:     logger.Named("executor"),
		settings:   settingsSvc,
		events:     events,
		governance: gov,
		bridge:     bridge,
	}
}

// Execute sends one order. In live mode with bridge transport mt5_zmq it
// retries transient bridge errors up to MT5_ORDER_RETRIES times, each
// attempt producing its own ExecutionEvent; any other status ends the loop.
func (e *Executor) Execute(ctx context.Context, req Request) (*types.ExecutionEvent, error) {
	if !e.isLive(ctx) {
		return e.simulate(ctx, req)
	}

	retries := e.settings.GetInt(ctx, settings.KeyMT5OrderRetries)
	if retries < 1 {
		retries = 1
	}

	var last *types.ExecutionEvent
	for attempt := 1; attempt <= retries; attempt++ {
		event, transient, err := e.attempt(ctx, req)
		if err != nil {
			e.logger.Error("execution attempt failed to record", zap.Error(err))
			return nil, err
		}
		last = event
		if event.Status != types.ExecStatusBlocked && event.Status != types.ExecStatusError {
			return event, nil
		}
		if !transient {
			break
		}
		e.logger.Warn("transient bridge error, retrying",
			zap.String("symbol", req.Symbol), zap.Int("attempt", attempt), zap.Int("max", retries))
	}
	return last, nil
}

func (e *Executor) isLive(ctx context.Context) bool {
	return e.settings.GetString(ctx, settings.KeyTradingMode) == "live" &&
		e.settings.GetString(ctx, settings.KeyExecutionBridge) == "mt5_zmq" &&
		e.bridge != nil
}

func (e *Executor) simulate(ctx context.Context, req Request) (*types.ExecutionEvent, error) {
	event := e.baseEvent(req, e.bridge != nil && e.bridge.Connected())
	event.Status = types.ExecStatusSimulated
	if err := e.events.Insert(ctx, *event); err != nil {
		return nil, fmt.Errorf("execution: recording simulated event: %w", err)
	}
	if e.metrics != nil {
		e.metrics.ObserveExecution(req.Symbol, string(req.Side), string(event.Status), 0, nil)
	}
	return event, nil
}

// attempt issues one SEND_ORDER round trip and evaluates the per-order
// guards, returning whether the failure looks transient (worth retrying).
func (e *Executor) attempt(ctx context.Context, req Request) (*types.ExecutionEvent, bool, error) {
	bridgeConnected := e.bridge.Connected()
	event := e.baseEvent(req, bridgeConnected)

	timeoutMs := e.settings.GetInt(ctx, settings.KeyExecTimeoutMs)
	request := map[string]any{
		"action": string(broker.ActionSendOrder),
		"symbol": req.Symbol,
		"type":   orderTypeString(req.Side),
		"volume": req.Volume.InexactFloat64(),
		"sl":     req.SL.InexactFloat64(),
		"tp":     req.TP.InexactFloat64(),
	}
	event.Request = request

	t0 := time.Now()
	reply, err := e.bridge.Send(request, time.Duration(timeoutMs)*time.Millisecond)
	latencyMs := time.Since(t0).Milliseconds()
	event.LatencyMs = &latencyMs

	if err != nil {
		event.Status = types.ExecStatusError
		event.Error = err.Error()
		e.persistAndNotify(ctx, event, true)
		return event, true, nil
	}

	event.Response = reply
	fill := broker.ParseFill(reply)
	event.Ticket = fill.Ticket
	event.FillPrice = fill.FillPrice
	event.Slippage = computeSlippage(req.Side, req.RequestedPrice, fill.FillPrice)

	maxLatencyMs := int64(e.settings.GetInt(ctx, settings.KeyExecMaxLatencyMs))
	maxSlippage := decimal.NewFromFloat(e.settings.GetFloat(ctx, settings.KeyExecMaxSlippage))

	switch {
	case latencyMs > maxLatencyMs:
		event.Status = types.ExecStatusBlocked
		event.Error = fmt.Sprintf("latency_ms %d exceeds max %d", latencyMs, maxLatencyMs)
	case event.Slippage != nil && event.Slippage.Abs().GreaterThan(maxSlippage):
		event.Status = types.ExecStatusBlocked
		event.Error = fmt.Sprintf("slippage %s exceeds max %s", event.Slippage.String(), maxSlippage.String())
	case fill.ErrorMsg != "":
		event.Status = types.ExecStatusError
		event.Error = fill.ErrorMsg
	default:
		event.Status = types.ExecStatusSuccess
	}

	violated := event.Status == types.ExecStatusBlocked || event.Status == types.ExecStatusError
	e.persistAndNotify(ctx, event, violated)
	return event, false, nil
}

func (e *Executor) persistAndNotify(ctx context.Context, event *types.ExecutionEvent, violated bool) {
	if err := e.events.Insert(ctx, *event); err != nil {
		e.logger.Error("failed to record execution event", zap.Error(err))
	}
	if e.metrics != nil {
		var latencySeconds float64
		if event.LatencyMs != nil {
			latencySeconds = float64(*event.LatencyMs) / 1000.0
		}
		var slippage *float64
		if event.Slippage != nil {
			f, _ := event.Slippage.Float64()
			slippage = &f
		}
		e.metrics.ObserveExecution(event.Symbol, string(event.Side), string(event.Status), latencySeconds, slippage)
	}
	if e.governance == nil {
		return
	}
	if disabled, reason := e.governance.PostTradeUpdate(ctx, violated); disabled {
		e.logger.Warn("auto-select disabled by governance", zap.String("reason", reason))
	}
}

func (e *Executor) baseEvent(req Request, bridgeConnected bool) *types.ExecutionEvent {
	return &types.ExecutionEvent{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		UserID:          req.UserID,
		Source:          req.Source,
		Symbol:          req.Symbol,
		Side:            req.Side,
		Volume:          req.Volume,
		RequestedPrice:  req.RequestedPrice,
		SL:              req.SL,
		TP:              req.TP,
		BridgeConnected: bridgeConnected,
	}
}

func orderTypeString(side types.OrderSide) string {
	if side == types.OrderSideSell {
		return "SELL"
	}
	return "BUY"
}

func computeSlippage(side types.OrderSide, requested decimal.Decimal, fill *decimal.Decimal) *decimal.Decimal {
	if fill == nil || requested.IsZero() {
		return nil
	}
	var slip decimal.Decimal
	if side == types.OrderSideBuy {
		slip = fill.Sub(requested)
	} else {
		slip = requested.Sub(*fill)
	}
	return &slip
}
