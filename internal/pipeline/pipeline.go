// Package pipeline composes the feature extractor, regime classifier, rule
// analyzers, model registry cache, and scorer into a single analyze()
// operation producing a scored TradingSignal.
package pipeline

import (
	"context"
	"time"

	"github.com/atlas-desktop/aurum-control-plane/internal/features"
	"github.com/atlas-desktop/aurum-control-plane/internal/modelregistry"
	"github.com/atlas-desktop/aurum-control-plane/internal/regime"
	"github.com/atlas-desktop/aurum-control-plane/internal/rules"
	"github.com/atlas-desktop/aurum-control-plane/internal/scoring"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MinCandlesForAnalysis is the absolute floor below which analyze() refuses
// to score and returns WAIT; callers (e.g. the scanner) may enforce a
// stricter per-universe minimum on top of this.
const MinCandlesForAnalysis = 50

const (
	strongThreshold = 60.0
	actionThreshold = 40.0
	slBufferPct     = 0.0005
)

// Config bundles the regime-support table consulted by the Scorer per call.
type Config struct {
	SupportedRegimes map[types.RegimeType][]types.RegimeType // keyed by a logical "strategy" name is out of scope here; kept simple: regime -> itself supported
	RegimeWeights    map[string]map[string]float64           // regime -> component -> weight
	SpreadOK         func(symbol string) bool
	RROK             func(sl, tp, entry decimal.Decimal) bool
}

// DefaultConfig returns permissive defaults: every regime is its own
// supported regime, no component re-weighting, spread always passes, and RR
// passes unless SL or TP equals the entry price.
func DefaultConfig() *Config {
	return &Config{
		SupportedRegimes: map[types.RegimeType][]types.RegimeType{
			types.RegimeTrendUp:        {types.RegimeTrendUp},
			types.RegimeTrendDown:      {types.RegimeTrendDown},
			types.RegimeRange:          {types.RegimeRange},
			types.RegimeHighVolatility: {types.RegimeHighVolatility},
			types.RegimeLowLiquidity:   {types.RegimeLowLiquidity},
		},
		RegimeWeights: map[string]map[string]float64{},
		SpreadOK:      func(string) bool { return true },
		RROK: func(sl, tp, entry decimal.Decimal) bool {
			return !sl.Equal(entry) && !tp.Equal(entry)
		},
	}
}

// Pipeline composes components A-E into analyze().
type Pipeline struct {
	logger *zap.Logger
	cfg    *Config

	extractor     *features.Extractor
	classifier    *regime.Classifier
	killzone      *rules.KillZoneClock
	smc           *rules.SMCAnalyzer
	volumeProfile *rules.VolumeProfileAnalyzer
	priceAction   *rules.PriceActionAnalyzer
	dxyReader     *rules.DXYReader
	modelCache    *modelregistry.Cache
	scorer        *scoring.Scorer
}

// New constructs a Pipeline from its components.
func New(
	logger *zap.Logger,
	cfg *Config,
	extractor *features.Extractor,
	classifier *regime.Classifier,
	killzone *rules.KillZoneClock,
	smc *rules.SMCAnalyzer,
	volumeProfile *rules.VolumeProfileAnalyzer,
	priceAction *rules.PriceActionAnalyzer,
	dxyReader *rules.DXYReader,
	modelCache *modelregistry.Cache,
	scorer *scoring.Scorer,
) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Pipeline{
		logger:        logger.Named("pipeline"),
		cfg:           cfg,
		extractor:     extractor,
		classifier:    classifier,
		killzone:      killzone,
		smc:           smc,
		volumeProfile: volumeProfile,
		priceAction:   priceAction,
		dxyReader:     dxyReader,
		modelCache:    modelCache,
		scorer:        scorer,
	}
}

// Analyze runs the full pipeline for one (symbol, timeframe, candles) cell.
func (p *Pipeline) Analyze(ctx context.Context, userID, symbol, timeframe string, candles []types.Candle) (*types.TradingSignal, error) {
	now := time.Now().UTC()

	if len(candles) < MinCandlesForAnalysis {
		return &types.TradingSignal{
			ID:        uuid.NewString(),
			UserID:    userID,
			Source:    types.SourceEngine,
			Symbol:    symbol,
			Timeframe: timeframe,
			Action:    types.ActionWait,
			Reasons:   []string{"insufficient_data"},
			Context:   map[string]any{"n_bars": len(candles)},
			CreatedAt: now,
		}, nil
	}

	fv, err := p.extractor.Extract(symbol, candles)
	if err != nil {
		return nil, err
	}

	kz := p.killzone.Evaluate(now)
	marketRegime := p.classifier.Classify(fv, kz.LiquidityRating)

	smcResult := p.smc.Analyze(candles)
	vpResult := p.volumeProfile.Analyze(candles)
	paResult := p.priceAction.Analyze(candles)
	dxyResult := p.dxyReader.Read()

	baseScore := ruleBaseScore(smcResult, vpResult, paResult, marketRegime)
	action := actionFromScore(baseScore)

	entry := decimal.Zero
	if fv.LastClose != nil {
		entry = *fv.LastClose
	}

	sl, tp := suggestLevels(action, entry, smcResult, slBufferPct)

	baseConfidence := baseConfidenceFrom(baseScore)
	if modelProbs, ok := p.tryModelConfidence(ctx, symbol, timeframe, fv); ok {
		baseConfidence = modelProbs
	}

	supported := p.cfg.SupportedRegimes[marketRegime.Primary]
	dxyOK := !dxyResult.Available || dxyResult.Impact != impactAdverse(action)
	rrOK := p.cfg.RROK(sl, tp, entry)
	spreadOK := p.cfg.SpreadOK(symbol)

	breakdown := p.scorer.Score(scoring.Input{
		BaseConfidence:   baseConfidence,
		Regime:           marketRegime.Primary,
		SupportedRegimes: supported,
		KillzoneCanTrade: kz.CanTrade,
		SpreadOK:         spreadOK,
		DXYOK:            dxyOK,
		RROK:             rrOK,
		RegimeWeights:    p.cfg.RegimeWeights[string(marketRegime.Primary)],
	})

	if !kz.CanTrade && action != types.ActionWait {
		switch action {
		case types.ActionBuy, types.ActionSell, types.ActionStrongBuy, types.ActionStrongSell:
			action = types.ActionNeutral
		}
	}

	signal := &types.TradingSignal{
		ID:          uuid.NewString(),
		UserID:      userID,
		Source:      types.SourceEngine,
		Symbol:      symbol,
		Timeframe:   timeframe,
		Action:      action,
		Confidence:  baseConfidence * 100,
		Score:       breakdown.Total,
		EntryPrice:  entry,
		SuggestedSL: sl,
		SuggestedTP: tp,
		Reasons:     breakdown.Reasons,
		CreatedAt:   now,
		Context: map[string]any{
			"regime":            marketRegime.Primary,
			"regime_confidence": marketRegime.Confidence,
			"regime_tags":       marketRegime.Tags,
			"killzone":          kz,
			"score_components":  breakdown.Components,
			"base_score":        baseScore,
			"dxy":               dxyResult,
			"n_bars":            len(candles),
		},
	}

	return signal, nil
}

func (p *Pipeline) tryModelConfidence(ctx context.Context, symbol, timeframe string, fv *types.FeatureVector) (float64, bool) {
	if p.modelCache == nil {
		return 0, false
	}

	var predictors []modelregistry.Predictor
	for _, kind := range []types.ModelKind{types.ModelXGBoost, types.ModelLightGBM, types.ModelLSTM} {
		if predictor, _, ok := p.modelCache.Get(ctx, kind, symbol, timeframe); ok {
			predictors = append(predictors, predictor)
		}
	}
	if len(predictors) == 0 {
		return 0, false
	}

	featureRow := featureRowFrom(fv)
	probs, err := modelregistry.Ensemble(predictors, featureRow)
	if err != nil {
		return 0, false
	}
	_, confidence := modelregistry.Direction(probs)
	return confidence, true
}

func featureRowFrom(fv *types.FeatureVector) map[string]float64 {
	row := map[string]float64{}
	putIf := func(name string, d *decimal.Decimal) {
		if d != nil {
			v, _ := d.Float64()
			row[name] = v
		}
	}
	putIf("last_close", fv.LastClose)
	putIf("ema_fast", fv.EMAFast)
	putIf("ema_slow", fv.EMASlow)
	putIf("ema_spread", fv.EMASpread)
	putIf("atr", fv.ATR)
	putIf("atr_pct", fv.ATRPct)
	putIf("bb_width", fv.BBWidth)
	return row
}

func ruleBaseScore(smc rules.SMCResult, vp rules.VolumeProfileResult, pa rules.PriceActionResult, regime *types.MarketRegime) float64 {
	score := 0.0

	if len(smc.OrderBlocks) > 0 {
		if smc.Bullish {
			score += 20
		} else {
			score -= 20
		}
	}
	for _, sweep := range smc.LiquiditySweeps {
		if sweep.Bullish {
			score += 10
		} else {
			score -= 10
		}
	}

	switch pa.Trend {
	case rules.TrendUp:
		score += 15
	case rules.TrendDown:
		score -= 15
	}
	for _, pattern := range pa.Patterns {
		switch pattern {
		case rules.PatternHammer, rules.PatternBullishEngulf, rules.PatternMorningStar, rules.PatternThreeSoldiers:
			score += 10
		case rules.PatternShootingStar, rules.PatternBearishEngulf, rules.PatternEveningStar, rules.PatternThreeCrows:
			score -= 10
		}
	}

	switch vp.Position {
	case rules.PositionBelowValueArea:
		score += 10
	case rules.PositionAboveValueArea:
		score -= 10
	}

	switch regime.Primary {
	case types.RegimeTrendUp:
		score += 10
	case types.RegimeTrendDown:
		score -= 10
	}

	if score > 100 {
		score = 100
	}
	if score < -100 {
		score = -100
	}
	return score
}

func actionFromScore(score float64) types.SignalAction {
	abs := score
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= strongThreshold && score > 0:
		return types.ActionStrongBuy
	case abs >= strongThreshold && score < 0:
		return types.ActionStrongSell
	case abs >= actionThreshold && score > 0:
		return types.ActionBuy
	case abs >= actionThreshold && score < 0:
		return types.ActionSell
	default:
		return types.ActionNeutral
	}
}

func baseConfidenceFrom(score float64) float64 {
	abs := score
	if abs < 0 {
		abs = -abs
	}
	return abs / 100.0
}

func suggestLevels(action types.SignalAction, entry decimal.Decimal, smc rules.SMCResult, bufferPct float64) (sl, tp decimal.Decimal) {
	buffer := entry.Mul(decimal.NewFromFloat(bufferPct))
	fallback := entry.Mul(decimal.NewFromFloat(0.005))

	switch action {
	case types.ActionBuy, types.ActionStrongBuy:
		sl = nearestOppositeLow(smc.OrderBlocks, entry)
		if sl.IsZero() {
			sl = entry.Sub(fallback)
		} else {
			sl = sl.Sub(buffer)
		}
		tp = entry.Add(entry.Sub(sl).Mul(decimal.NewFromInt(2)))
	case types.ActionSell, types.ActionStrongSell:
		sl = nearestOppositeHigh(smc.OrderBlocks, entry)
		if sl.IsZero() {
			sl = entry.Add(fallback)
		} else {
			sl = sl.Add(buffer)
		}
		tp = entry.Sub(sl.Sub(entry).Mul(decimal.NewFromInt(2)))
	default:
		sl = decimal.Zero
		tp = decimal.Zero
	}
	return sl, tp
}

func nearestOppositeLow(obs []rules.OrderBlock, entry decimal.Decimal) decimal.Decimal {
	best := decimal.Zero
	for _, ob := range obs {
		if ob.Side != rules.OrderBlockBearish || !ob.Low.LessThan(entry) {
			continue
		}
		if best.IsZero() || ob.Low.GreaterThan(best) {
			best = ob.Low
		}
	}
	return best
}

func nearestOppositeHigh(obs []rules.OrderBlock, entry decimal.Decimal) decimal.Decimal {
	best := decimal.Zero
	for _, ob := range obs {
		if ob.Side != rules.OrderBlockBullish || !ob.High.GreaterThan(entry) {
			continue
		}
		if best.IsZero() || ob.High.LessThan(best) {
			best = ob.High
		}
	}
	return best
}

func impactAdverse(action types.SignalAction) types.DXYImpact {
	if action == types.ActionBuy || action == types.ActionStrongBuy {
		return types.DXYImpactBearish
	}
	return types.DXYImpactBullish
}
