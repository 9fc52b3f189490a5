// Package dxy maintains the cached USD-index context that the scorer reads
// through internal/rules.DXYContextProvider: current impact/strength on
// gold, a rolling DXY/XAU correlation, and salient DXY levels.
package dxy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/metrics"
	"github.com/atlas-desktop/aurum-control-plane/internal/settings"
	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

const (
	seriesCapacity    = 120
	minPairedReturns  = 5
	correlationSymbol = "XAUUSD"
	correlationTF     = "M15"
)

var errNoProviders = errors.New("dxy: no providers configured")

// keyLevels mirrors the fixed DXY support/resistance/pivot map the original
// dollar tracker ships with.
var keyLevels = []decimal.Decimal{
	decimal.NewFromFloat(110.0),
	decimal.NewFromFloat(109.0),
	decimal.NewFromFloat(108.0),
	decimal.NewFromFloat(107.5),
	decimal.NewFromFloat(107.0),
	decimal.NewFromFloat(106.5),
	decimal.NewFromFloat(105.0), // pivot
	decimal.NewFromFloat(104.5),
	decimal.NewFromFloat(104.0),
	decimal.NewFromFloat(103.5),
	decimal.NewFromFloat(103.0),
	decimal.NewFromFloat(102.0),
	decimal.NewFromFloat(100.0),
}

// Service owns the DXYContext cache and the two rolling price series it is
// derived from. It satisfies rules.DXYContextProvider.
type Service struct {
	logger    *zap.Logger
	settings  *settings.Service
	candles   *store.CandleRepository
	providers []Provider

	mu          sync.RWMutex
	ctx         *types.DXYContext
	expiresAt   time.Time
	lastRefresh time.Time
	dxySeries   []float64
	xauSeries   []float64
	prevDXY     decimal.Decimal
	havePrev    bool

	metrics *metrics.Registry
}

// SetMetrics attaches a Prometheus registry. Optional.
func (s *Service) SetMetrics(m *metrics.Registry) {
	s.metrics = m
}

// New constructs a Service with providers tried in order on every refresh.
func New(logger *zap.Logger, settingsSvc *settings.Service, candles *store.CandleRepository, providers ...Provider) *Service {
	return &Service{
		logger:    logger.Named("dxy"),
		settings:  settingsSvc,
		candles:   candles,
		providers: providers,
	}
}

// Current returns the cached DXYContext if one has been published and its
// TTL has not elapsed.
func (s *Service) Current() (*types.DXYContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil || time.Now().After(s.expiresAt) {
		return nil, false
	}
	return s.ctx, true
}

// Refresh fetches a fresh DXY quote (unless DXY_REFRESH_SECONDS has not
// elapsed since the last refresh), updates the rolling series, recomputes
// impact/strength/correlation/key-levels, and republishes the cache.
func (s *Service) Refresh(ctx context.Context) error {
	refreshEvery := time.Duration(s.settings.GetInt(ctx, settings.KeyDXYRefreshSeconds)) * time.Second

	s.mu.RLock()
	dueAt := s.lastRefresh.Add(refreshEvery)
	s.mu.RUnlock()
	if refreshEvery > 0 && time.Now().Before(dueAt) {
		return nil
	}

	quote, provider, err := s.fetchFirstSuccess(ctx)
	if err != nil {
		s.logger.Warn("all dxy providers failed", zap.Error(err))
		if s.metrics != nil {
			s.metrics.ObserveDXYRefresh("error")
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.ObserveDXYRefresh("ok")
	}

	xauClose := s.latestXAUClose(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	impact, strength := classifyDelta(s.prevDXY, quote.Price, s.havePrev)
	s.prevDXY = quote.Price
	s.havePrev = true

	s.dxySeries = pushCapped(s.dxySeries, quote.Price.InexactFloat64(), seriesCapacity)
	if xauClose != nil {
		s.xauSeries = pushCapped(s.xauSeries, xauClose.InexactFloat64(), seriesCapacity)
	}

	corrRolling, corrStrength := rollingCorrelation(s.dxySeries, s.xauSeries)

	levelBreakout := checkLevelBreakout(s.ctx, quote.Price)

	ttl := time.Duration(s.settings.GetInt(ctx, settings.KeyDXYCacheTTLSeconds)) * time.Second
	now := time.Now().UTC()

	s.ctx = &types.DXYContext{
		Provider:      provider,
		Symbol:        "DXY",
		CurrentDXY:    quote.Price,
		Impact:        impact,
		Strength:      strength,
		CorrRolling:   corrRolling,
		CorrStrength:  corrStrength,
		KeyLevels:     keyLevels,
		LevelBreakout: levelBreakout,
		UpdatedAt:     now,
	}
	s.expiresAt = now.Add(ttl)
	s.lastRefresh = now

	return nil
}

func (s *Service) fetchFirstSuccess(ctx context.Context) (Quote, string, error) {
	var lastErr error
	for _, p := range s.providers {
		quote, err := p.Fetch(ctx)
		if err != nil {
			lastErr = err
			s.logger.Warn("dxy provider failed, trying next", zap.String("provider", p.Name()), zap.Error(err))
			continue
		}
		return quote, p.Name(), nil
	}
	if lastErr == nil {
		lastErr = errNoProviders
	}
	return Quote{}, "", lastErr
}

func (s *Service) latestXAUClose(ctx context.Context) *decimal.Decimal {
	candles, err := s.candles.Recent(ctx, correlationSymbol, correlationTF, 1)
	if err != nil || len(candles) == 0 {
		return nil
	}
	closePrice := candles[0].Close
	return &closePrice
}

// classifyDelta maps the DXY move since the previous tick to a gold
// impact/strength pair using piecewise-constant thresholds. A DXY rise is
// bearish for gold; a DXY fall is bullish.
func classifyDelta(prev, current decimal.Decimal, havePrev bool) (types.DXYImpact, types.DXYStrength) {
	if !havePrev {
		return types.DXYImpactNeutral, types.DXYStrengthLow
	}

	delta := current.Sub(prev)
	abs := delta.Abs().InexactFloat64()

	var strength types.DXYStrength
	switch {
	case abs < 0.03:
		return types.DXYImpactNeutral, types.DXYStrengthLow
	case abs < 0.06:
		strength = types.DXYStrengthLow
	case abs < 0.12:
		strength = types.DXYStrengthModerate
	default:
		strength = types.DXYStrengthStrong
	}

	impact := types.DXYImpactBearish
	if delta.IsNegative() {
		impact = types.DXYImpactBullish
	}
	return impact, strength
}

// rollingCorrelation computes the Pearson correlation of pct-returns between
// the two series, requiring at least minPairedReturns paired observations.
func rollingCorrelation(dxy, xau []float64) (*float64, types.DXYStrength) {
	dxyReturns := pctReturns(dxy)
	xauReturns := pctReturns(xau)

	n := len(dxyReturns)
	if len(xauReturns) < n {
		n = len(xauReturns)
	}
	if n < minPairedReturns {
		return nil, types.DXYStrengthLow
	}
	dxyReturns = dxyReturns[len(dxyReturns)-n:]
	xauReturns = xauReturns[len(xauReturns)-n:]

	r := stat.Correlation(dxyReturns, xauReturns, nil)
	abs := r
	if abs < 0 {
		abs = -abs
	}

	strength := types.DXYStrengthLow
	switch {
	case abs >= 0.65:
		strength = types.DXYStrengthStrong
	case abs >= 0.35:
		strength = types.DXYStrengthModerate
	}
	return &r, strength
}

func pctReturns(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		if series[i-1] == 0 {
			continue
		}
		out = append(out, (series[i]-series[i-1])/series[i-1])
	}
	return out
}

func pushCapped(series []float64, value float64, capacity int) []float64 {
	series = append(series, value)
	if len(series) > capacity {
		series = series[len(series)-capacity:]
	}
	return series
}

// checkLevelBreakout reports whether current crossed any fixed key level
// since the previously published context.
func checkLevelBreakout(prevCtx *types.DXYContext, current decimal.Decimal) bool {
	if prevCtx == nil {
		return false
	}
	prev := prevCtx.CurrentDXY
	for _, level := range keyLevels {
		if (prev.LessThan(level) && current.GreaterThanOrEqual(level)) ||
			(prev.GreaterThan(level) && current.LessThanOrEqual(level)) {
			return true
		}
	}
	return false
}
