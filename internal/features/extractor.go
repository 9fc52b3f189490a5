// Package features computes the compact per-(symbol,timeframe) feature
// vector the rest of the pipeline scores against: EMA spread, ATR%,
// Bollinger width, and the last close.
package features

import (
	"errors"
	"math"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
)

// ErrEmptyMarketData is returned when Extract is called with no candles.
var ErrEmptyMarketData = errors.New("features: empty market data")

const (
	emaFastWindow  = 60
	emaFastPeriod  = 20
	emaSlowWindow  = 120
	emaSlowPeriod  = 50
	atrPeriod      = 14
	bbPeriod       = 20
	bbStdDevMult   = 2.0
)

// Extractor computes FeatureVectors from ordered candle series. It holds no
// state between calls.
type Extractor struct{}

// New constructs a stateless Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract builds a FeatureVector from an ordered (oldest-first) candle
// series. Any indicator field is nil when its window is not satisfied.
func (e *Extractor) Extract(symbol string, candles []types.Candle) (*types.FeatureVector, error) {
	if len(candles) == 0 {
		return nil, ErrEmptyMarketData
	}

	closes := closesOf(candles)
	last := closes[len(closes)-1]

	fv := &types.FeatureVector{
		Symbol:    symbol,
		LastClose: decPtr(last),
		NBars:     len(candles),
	}

	emaFast, okFast := emaOverWindow(closes, emaFastWindow, emaFastPeriod)
	emaSlow, okSlow := emaOverWindow(closes, emaSlowWindow, emaSlowPeriod)
	if okFast {
		fv.EMAFast = decPtr(emaFast)
	}
	if okSlow {
		fv.EMASlow = decPtr(emaSlow)
	}
	if okFast && okSlow {
		fv.EMASpread = decPtr(emaFast - emaSlow)
	}

	if atr, ok := atrOver(candles, atrPeriod); ok {
		fv.ATR = decPtr(atr)
		if last != 0 {
			fv.ATRPct = decPtr(atr / last)
		}
	}

	if width, ok := bollingerBandwidth(closes, bbPeriod, bbStdDevMult); ok {
		fv.BBWidth = decPtr(width)
	}

	return fv, nil
}

func closesOf(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i], _ = c.Close.Float64()
	}
	return out
}

// emaOverWindow takes the last `window` closes (or fewer), seeds the EMA
// with a simple mean of the first `period` values, then smooths the rest
// with alpha = 2/(period+1). Returns ok=false if fewer than `period` values
// are available.
func emaOverWindow(closes []float64, window, period int) (float64, bool) {
	series := closes
	if len(series) > window {
		series = series[len(series)-window:]
	}
	if len(series) < period {
		return 0, false
	}

	alpha := 2.0 / float64(period+1)
	seed := mean(series[:period])
	ema := seed
	for _, v := range series[period:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema, true
}

func atrOver(candles []types.Candle, period int) (float64, bool) {
	if len(candles) < period+1 {
		return 0, false
	}
	window := candles[len(candles)-(period+1):]

	var sum float64
	for i := 1; i < len(window); i++ {
		sum += trueRange(window[i-1], window[i])
	}
	return sum / float64(period), true
}

func trueRange(prev, cur types.Candle) float64 {
	high, _ := cur.High.Float64()
	low, _ := cur.Low.Float64()
	prevClose, _ := prev.Close.Float64()

	hl := high - low
	hc := math.Abs(high - prevClose)
	lc := math.Abs(low - prevClose)
	return math.Max(hl, math.Max(hc, lc))
}

func bollingerBandwidth(closes []float64, period int, stdevMult float64) (float64, bool) {
	if len(closes) < period {
		return 0, false
	}
	window := closes[len(closes)-period:]
	mu := mean(window)
	if mu == 0 {
		return 0, false
	}
	sigma := stdDev(window, mu)
	upper := mu + stdevMult*sigma
	lower := mu - stdevMult*sigma
	return (upper - lower) / math.Abs(mu), true
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdDev is the sample standard deviation (n-1 denominator), matching the
// original implementation's variance formula.
func stdDev(xs []float64, mu float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sumSq float64
	for _, x := range xs {
		d := x - mu
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

func decPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
