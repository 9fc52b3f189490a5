// Package regime classifies the current market behavior from a feature
// vector into a coarse MarketRegime: trending, ranging, high-volatility, or
// low-liquidity, with a confidence score and human-auditable reasons.
package regime

import (
	"math"
	"sync"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"go.uber.org/zap"
)

// Config tunes the classifier's thresholds.
type Config struct {
	HighVolATRPctThreshold float64 // default 0.006, gold-like instruments
	TrendSpreadThreshold   float64 // |ema_spread| beyond which a trend is called
	RangeBBWidthMax        float64 // bb_width below which range is favored
	LowLiquidityRating     int     // kill-zone liquidity rating at/below which low_liquidity tags
}

// DefaultConfig returns the thresholds used when nothing else is configured.
func DefaultConfig() *Config {
	return &Config{
		HighVolATRPctThreshold: 0.006,
		TrendSpreadThreshold:   0.0015,
		RangeBBWidthMax:        0.01,
		LowLiquidityRating:     2,
	}
}

// Classifier derives a MarketRegime from a FeatureVector. It holds no
// per-symbol state; the mutex guards reads of cfg, which only New sets.
type Classifier struct {
	mu     sync.RWMutex
	logger *zap.Logger
	cfg    *Config
}

// New constructs a Classifier.
func New(logger *zap.Logger, cfg *Config) *Classifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Classifier{logger: logger.Named("regime"), cfg: cfg}
}

// Classify derives the MarketRegime. liquidityRating is the kill-zone
// liquidity rating (1-5) for the current UTC time, used only to derive the
// low_liquidity tag; it has no effect on the primary classification.
func (c *Classifier) Classify(fv *types.FeatureVector, liquidityRating int) *types.MarketRegime {
	c.mu.RLock()
	cfg := c.cfg
	c.mu.RUnlock()

	regime := &types.MarketRegime{
		Tags:    map[string]bool{},
		Reasons: map[string]float64{},
	}

	if liquidityRating <= cfg.LowLiquidityRating {
		regime.Tags["low_liquidity"] = true
		regime.Reasons["liquidity_rating"] = float64(liquidityRating)
	}

	if fv.ATRPct == nil || fv.EMASpread == nil || fv.BBWidth == nil {
		regime.Primary = types.RegimeRange
		regime.Confidence = 0
		regime.Reasons["insufficient_features"] = 1
		return regime
	}

	atrPct, _ := fv.ATRPct.Float64()
	emaSpread, _ := fv.EMASpread.Float64()
	bbWidth, _ := fv.BBWidth.Float64()
	lastClose := 1.0
	if fv.LastClose != nil {
		if v, _ := fv.LastClose.Float64(); v != 0 {
			lastClose = v
		}
	}
	normSpread := emaSpread / lastClose

	regime.Reasons["atr_pct"] = atrPct
	regime.Reasons["ema_spread_norm"] = normSpread
	regime.Reasons["bb_width"] = bbWidth

	switch {
	case atrPct > cfg.HighVolATRPctThreshold:
		regime.Primary = types.RegimeHighVolatility
		regime.Confidence = clamp01(atrPct / (cfg.HighVolATRPctThreshold * 2))
	case math.Abs(normSpread) > cfg.TrendSpreadThreshold:
		if normSpread > 0 {
			regime.Primary = types.RegimeTrendUp
		} else {
			regime.Primary = types.RegimeTrendDown
		}
		regime.Confidence = clamp01(math.Abs(normSpread) / (cfg.TrendSpreadThreshold * 4))
	case math.Abs(normSpread) <= cfg.TrendSpreadThreshold/3 && bbWidth <= cfg.RangeBBWidthMax:
		regime.Primary = types.RegimeRange
		regime.Confidence = clamp01(1 - bbWidth/cfg.RangeBBWidthMax)
	default:
		regime.Primary = types.RegimeRange
		regime.Confidence = 0.3
	}

	return regime
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
