// Package governance gates order execution: a pre-trade check (automation
// flag, bridge connectivity, predictive-report freshness, rate limits) and a
// post-trade violation tracker that can disable automation.
package governance

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/metrics"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"go.uber.org/zap"
)

// Decision is the outcome of a pre-trade gate evaluation.
type Decision struct {
	Allow             bool
	Reason            string
	DisableAutoSelect bool
}

// Governance evaluates pre- and post-trade gates against the app_settings
// control surface, re-reading it on every decision.
type Governance struct {
	logger     *zap.Logger
	settings   *settings.Service
	execEvents *store.ExecutionEventRepository
	predictive *store.PredictiveReportRepository
	metrics    *metrics.Registry
}

// SetMetrics attaches a Prometheus registry. Optional.
func (g *Governance) SetMetrics(m *metrics.Registry) {
	g.metrics = m
}

// New constructs a Governance service.
func New(logger *zap.Logger, settingsSvc *settings.Service, execEvents *store.ExecutionEventRepository, predictive *store.PredictiveReportRepository) *Governance {
	return &Governance{
		logger:     logger.Named("governance"),
		settings:   settingsSvc,
		execEvents: execEvents,
		predictive: predictive,
	}
}

// PreTradeGate evaluates whether an order from source may proceed.
func (g *Governance) PreTradeGate(ctx context.Context, userID string, bridgeConnected, isAutomation bool) Decision {
	decision := g.preTradeGate(ctx, userID, bridgeConnected, isAutomation)
	if g.metrics != nil {
		g.metrics.ObserveGovernanceDecision(decision.Allow, decision.Reason)
	}
	return decision
}

func (g *Governance) preTradeGate(ctx context.Context, userID string, bridgeConnected, isAutomation bool) Decision {
	if !g.settings.GetBool(ctx, settings.KeyExecGuardEnabled) {
		return Decision{Allow: true}
	}

	if isAutomation {
		if !g.settings.GetBool(ctx, settings.KeyAutoSelectEnabled) {
			return Decision{Allow: false, Reason: "AUTO_SELECT_ENABLED=false"}
		}
		if !bridgeConnected {
			return Decision{Allow: false, Reason: "bridge_disconnected"}
		}

		if decision, ok := g.predictiveGate(ctx); !ok {
			return decision
		}

		if blocked, reason := g.rateLimited(ctx, userID); blocked {
			return Decision{Allow: false, Reason: reason}
		}
	}

	return Decision{Allow: true}
}

// predictiveGate checks that a fresh, stable PredictiveReport exists for
// (XAUUSD, M15). On failure it disables automation and returns the failing
// decision; ok=true means the gate passed and the caller should continue.
func (g *Governance) predictiveGate(ctx context.Context) (Decision, bool) {
	maxAgeMin := g.settings.GetFloat(ctx, settings.KeyPredictiveMaxReportAgeMin)
	minStability := g.settings.GetFloat(ctx, settings.KeyPredictiveStabilityMin)

	report, err := g.predictive.Latest(ctx, "XAUUSD", "M15")
	if err != nil {
		reason := "predictive_report_missing"
		g.disableAutoSelect(ctx, reason)
		return Decision{Allow: false, Reason: reason, DisableAutoSelect: true}, false
	}

	age := time.Since(report.CreatedAt)
	if age > time.Duration(maxAgeMin)*time.Minute {
		reason := "predictive_report_stale"
		g.disableAutoSelect(ctx, reason)
		return Decision{Allow: false, Reason: reason, DisableAutoSelect: true}, false
	}

	stability, _ := report.StabilityScore.Float64()
	if stability < minStability {
		reason := "predictive_stability_below_minimum"
		g.disableAutoSelect(ctx, reason)
		return Decision{Allow: false, Reason: reason, DisableAutoSelect: true}, false
	}

	return Decision{}, true
}

func (g *Governance) rateLimited(ctx context.Context, userID string) (bool, string) {
	maxPerHour := g.settings.GetInt(ctx, settings.KeyAutoSelectMaxTradesPerHour)
	count, err := g.execEvents.CountInWindow(ctx, userID, time.Now().UnixMilli(), int64(time.Hour/time.Millisecond))
	if err != nil {
		g.logger.Warn("rate limit check failed, allowing", zap.Error(err))
		return false, ""
	}
	if count >= maxPerHour {
		return true, "rate_limited"
	}
	return false, ""
}

// PostTradeUpdate inspects recent violations after a blocked/error outcome
// and atomically disables automation if the violation threshold is crossed
// within the configured window.
func (g *Governance) PostTradeUpdate(ctx context.Context, violated bool) (disabled bool, reason string) {
	if !violated {
		return false, ""
	}
	if !g.settings.GetBool(ctx, settings.KeyExecDisableAutoOnViolation) {
		return false, ""
	}

	windowMin := g.settings.GetInt(ctx, settings.KeyExecViolationWindowMin)
	maxViolations := g.settings.GetInt(ctx, settings.KeyExecMaxViolationsInWindow)

	windowMs := int64(windowMin) * int64(time.Minute/time.Millisecond)
	count, err := g.execEvents.CountStatusInWindow(ctx, time.Now().UnixMilli(), windowMs, types.ExecStatusBlocked, types.ExecStatusError)
	if err != nil {
		g.logger.Warn("violation count failed", zap.Error(err))
		return false, ""
	}
	if count < maxViolations {
		return false, ""
	}

	reason = fmt.Sprintf("%d violations in %d min (limit %d)", count, windowMin, maxViolations)
	g.disableAutoSelect(ctx, reason)
	return true, reason
}

func (g *Governance) disableAutoSelect(ctx context.Context, reason string) {
	if err := g.settings.SetBool(ctx, settings.KeyAutoSelectEnabled, false); err != nil {
		g.logger.Error("failed to disable auto-select", zap.Error(err))
		return
	}
	if err := g.settings.Set(ctx, settings.KeyAutoSelectDisableReason, reason); err != nil {
		g.logger.Error("failed to set disable reason", zap.Error(err))
	}
}
