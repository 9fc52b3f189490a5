package rules

import (
	"sort"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
)

// CandlePattern names a recognized single/multi-candle formation.
type CandlePattern string

const (
	PatternDoji           CandlePattern = "doji"
	PatternHammer         CandlePattern = "hammer"
	PatternShootingStar   CandlePattern = "shooting_star"
	PatternBullishEngulf  CandlePattern = "bullish_engulfing"
	PatternBearishEngulf  CandlePattern = "bearish_engulfing"
	PatternMorningStar    CandlePattern = "morning_star"
	PatternEveningStar    CandlePattern = "evening_star"
	PatternThreeSoldiers  CandlePattern = "three_white_soldiers"
	PatternThreeCrows     CandlePattern = "three_black_crows"
)

// Trend is the direction implied by EMA(20) vs EMA(50) and price.
type Trend string

const (
	TrendUp   Trend = "up"
	TrendDown Trend = "down"
	TrendFlat Trend = "flat"
)

// Level is a support/resistance price ordered by how often price touched it.
type Level struct {
	Price       decimal.Decimal
	TouchCount  int
}

// PriceActionResult is the output of the price-action analyzer.
type PriceActionResult struct {
	Patterns []CandlePattern
	Levels   []Level
	Trend    Trend
}

// PriceActionConfig tunes swing clustering and EMA periods.
type PriceActionConfig struct {
	ClusterTolerancePct float64
	FastPeriod          int
	SlowPeriod          int
}

// DefaultPriceActionConfig returns sensible defaults.
func DefaultPriceActionConfig() *PriceActionConfig {
	return &PriceActionConfig{ClusterTolerancePct: 0.0015, FastPeriod: 20, SlowPeriod: 50}
}

// PriceActionAnalyzer enumerates candlestick patterns and clusters swing
// points into support/resistance levels.
type PriceActionAnalyzer struct {
	cfg *PriceActionConfig
}

// NewPriceActionAnalyzer constructs a PriceActionAnalyzer.
func NewPriceActionAnalyzer(cfg *PriceActionConfig) *PriceActionAnalyzer {
	if cfg == nil {
		cfg = DefaultPriceActionConfig()
	}
	return &PriceActionAnalyzer{cfg: cfg}
}

// Analyze detects patterns over the last few candles, clusters swing points
// into levels, and derives trend direction.
func (a *PriceActionAnalyzer) Analyze(candles []types.Candle) PriceActionResult {
	var res PriceActionResult
	if len(candles) < 3 {
		return res
	}

	res.Patterns = a.detectPatterns(candles)

	highs, lows := swingPoints(candles, 2)
	var touches []decimal.Decimal
	for _, i := range highs {
		touches = append(touches, candles[i].High)
	}
	for _, i := range lows {
		touches = append(touches, candles[i].Low)
	}
	res.Levels = clusterLevels(touches, a.cfg.ClusterTolerancePct)

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i], _ = c.Close.Float64()
	}
	fast, okFast := simpleEMA(closes, a.cfg.FastPeriod)
	slow, okSlow := simpleEMA(closes, a.cfg.SlowPeriod)
	last := closes[len(closes)-1]
	switch {
	case okFast && okSlow && fast > slow && last > fast:
		res.Trend = TrendUp
	case okFast && okSlow && fast < slow && last < fast:
		res.Trend = TrendDown
	default:
		res.Trend = TrendFlat
	}

	return res
}

func (a *PriceActionAnalyzer) detectPatterns(candles []types.Candle) []CandlePattern {
	var patterns []CandlePattern
	n := len(candles)
	last := candles[n-1]

	if isDoji(last) {
		patterns = append(patterns, PatternDoji)
	}
	if isHammer(last) {
		patterns = append(patterns, PatternHammer)
	}
	if isShootingStar(last) {
		patterns = append(patterns, PatternShootingStar)
	}
	if n >= 2 {
		prev := candles[n-2]
		if isBullishEngulfing(prev, last) {
			patterns = append(patterns, PatternBullishEngulf)
		}
		if isBearishEngulfing(prev, last) {
			patterns = append(patterns, PatternBearishEngulf)
		}
	}
	if n >= 3 {
		if isThreeWhiteSoldiers(candles[n-3:]) {
			patterns = append(patterns, PatternThreeSoldiers)
		}
		if isThreeBlackCrows(candles[n-3:]) {
			patterns = append(patterns, PatternThreeCrows)
		}
	}
	return patterns
}

func isDoji(c types.Candle) bool {
	body := c.Close.Sub(c.Open).Abs()
	rng := c.High.Sub(c.Low)
	if rng.IsZero() {
		return false
	}
	return body.Div(rng).LessThan(decimal.NewFromFloat(0.1))
}

func isHammer(c types.Candle) bool {
	body := c.Close.Sub(c.Open).Abs()
	lowerWick := decimal.Min(c.Open, c.Close).Sub(c.Low)
	upperWick := c.High.Sub(decimal.Max(c.Open, c.Close))
	return lowerWick.GreaterThan(body.Mul(decimal.NewFromInt(2))) && upperWick.LessThan(body)
}

func isShootingStar(c types.Candle) bool {
	body := c.Close.Sub(c.Open).Abs()
	upperWick := c.High.Sub(decimal.Max(c.Open, c.Close))
	lowerWick := decimal.Min(c.Open, c.Close).Sub(c.Low)
	return upperWick.GreaterThan(body.Mul(decimal.NewFromInt(2))) && lowerWick.LessThan(body)
}

func isBullishEngulfing(prev, cur types.Candle) bool {
	return prev.Close.LessThan(prev.Open) && cur.Close.GreaterThan(cur.Open) &&
		cur.Open.LessThanOrEqual(prev.Close) && cur.Close.GreaterThanOrEqual(prev.Open)
}

func isBearishEngulfing(prev, cur types.Candle) bool {
	return prev.Close.GreaterThan(prev.Open) && cur.Close.LessThan(cur.Open) &&
		cur.Open.GreaterThanOrEqual(prev.Close) && cur.Close.LessThanOrEqual(prev.Open)
}

func isThreeWhiteSoldiers(c []types.Candle) bool {
	for _, k := range c {
		if !k.Close.GreaterThan(k.Open) {
			return false
		}
	}
	return c[1].Close.GreaterThan(c[0].Close) && c[2].Close.GreaterThan(c[1].Close)
}

func isThreeBlackCrows(c []types.Candle) bool {
	for _, k := range c {
		if !k.Close.LessThan(k.Open) {
			return false
		}
	}
	return c[1].Close.LessThan(c[0].Close) && c[2].Close.LessThan(c[1].Close)
}

func clusterLevels(touches []decimal.Decimal, tolerancePct float64) []Level {
	if len(touches) == 0 {
		return nil
	}
	sort.Slice(touches, func(i, j int) bool { return touches[i].LessThan(touches[j]) })

	var levels []Level
	cur := Level{Price: touches[0], TouchCount: 1}
	for _, p := range touches[1:] {
		tol := cur.Price.Mul(decimal.NewFromFloat(tolerancePct))
		if p.Sub(cur.Price).Abs().LessThanOrEqual(tol) {
			cur.TouchCount++
			continue
		}
		levels = append(levels, cur)
		cur = Level{Price: p, TouchCount: 1}
	}
	levels = append(levels, cur)

	sort.Slice(levels, func(i, j int) bool { return levels[i].TouchCount > levels[j].TouchCount })
	return levels
}

func simpleEMA(closes []float64, period int) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	alpha := 2.0 / float64(period+1)
	seed := mean(closes[:period])
	ema := seed
	for _, v := range closes[period:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
