package rules

import (
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
)

// OrderBlockSide is the directional bias of a detected order block.
type OrderBlockSide string

const (
	OrderBlockBullish OrderBlockSide = "bullish"
	OrderBlockBearish OrderBlockSide = "bearish"
)

// OrderBlock is the last opposite-direction candle before a strong displacement.
type OrderBlock struct {
	Side  OrderBlockSide
	High  decimal.Decimal
	Low   decimal.Decimal
	Index int
}

// FairValueGap is a three-bar price imbalance.
type FairValueGap struct {
	Bullish bool
	Top     decimal.Decimal
	Bottom  decimal.Decimal
	Index   int
}

// LiquiditySweep is a brief break of a prior swing that closes back inside.
type LiquiditySweep struct {
	Bullish bool
	Level   decimal.Decimal
	Index   int
}

// SMCResult is the output of the smart-money-concepts analyzer.
type SMCResult struct {
	OrderBlocks      []OrderBlock
	FairValueGaps    []FairValueGap
	LiquiditySweeps  []LiquiditySweep
	BreakOfStructure bool
	Bullish          bool
}

// SMCConfig tunes displacement/imbalance detection thresholds.
type SMCConfig struct {
	DisplacementATRMult float64 // a candle body beyond this multiple of average range is "strong"
	MinGapSizePct       float64 // minimum FVG size as a fraction of price
	SwingLookback       int     // bars on each side required to confirm a swing point
}

// DefaultSMCConfig returns sensible defaults.
func DefaultSMCConfig() *SMCConfig {
	return &SMCConfig{
		DisplacementATRMult: 1.5,
		MinGapSizePct:       0.0008,
		SwingLookback:       2,
	}
}

// SMCAnalyzer detects order blocks, fair value gaps, liquidity sweeps, and
// break-of-structure over a candle window. Pure function of its input.
type SMCAnalyzer struct {
	cfg *SMCConfig
}

// NewSMCAnalyzer constructs an SMCAnalyzer.
func NewSMCAnalyzer(cfg *SMCConfig) *SMCAnalyzer {
	if cfg == nil {
		cfg = DefaultSMCConfig()
	}
	return &SMCAnalyzer{cfg: cfg}
}

// Analyze runs every detector over the candle window.
func (a *SMCAnalyzer) Analyze(candles []types.Candle) SMCResult {
	var res SMCResult
	if len(candles) < 5 {
		return res
	}

	avgRange := averageRange(candles)
	res.OrderBlocks = a.detectOrderBlocks(candles, avgRange)
	res.FairValueGaps = a.detectFVGs(candles)
	swingHighs, swingLows := swingPoints(candles, a.cfg.SwingLookback)
	res.LiquiditySweeps = a.detectSweeps(candles, swingHighs, swingLows)
	res.BreakOfStructure = len(swingHighs) >= 2 && len(swingLows) >= 2 &&
		candles[len(candles)-1].Close.GreaterThan(highOf(candles, swingHighs[len(swingHighs)-1]))

	if len(res.OrderBlocks) > 0 {
		res.Bullish = res.OrderBlocks[len(res.OrderBlocks)-1].Side == OrderBlockBullish
	}
	return res
}

func (a *SMCAnalyzer) detectOrderBlocks(candles []types.Candle, avgRange decimal.Decimal) []OrderBlock {
	var obs []OrderBlock
	threshold := avgRange.Mul(decimal.NewFromFloat(a.cfg.DisplacementATRMult))

	for i := 1; i < len(candles); i++ {
		body := candles[i].Close.Sub(candles[i].Open).Abs()
		if body.LessThan(threshold) {
			continue
		}
		bullishDisplacement := candles[i].Close.GreaterThan(candles[i].Open)
		prev := candles[i-1]
		prevBearish := prev.Close.LessThan(prev.Open)
		prevBullish := prev.Close.GreaterThan(prev.Open)

		switch {
		case bullishDisplacement && prevBearish:
			obs = append(obs, OrderBlock{Side: OrderBlockBullish, High: prev.High, Low: prev.Low, Index: i - 1})
		case !bullishDisplacement && prevBullish:
			obs = append(obs, OrderBlock{Side: OrderBlockBearish, High: prev.High, Low: prev.Low, Index: i - 1})
		}
	}
	return obs
}

func (a *SMCAnalyzer) detectFVGs(candles []types.Candle) []FairValueGap {
	var gaps []FairValueGap
	for i := 2; i < len(candles); i++ {
		bar1, bar3 := candles[i-2], candles[i]
		minGap := bar1.Close.Mul(decimal.NewFromFloat(a.cfg.MinGapSizePct))

		if bar3.Low.GreaterThan(bar1.High) && bar3.Low.Sub(bar1.High).GreaterThan(minGap) {
			gaps = append(gaps, FairValueGap{Bullish: true, Top: bar3.Low, Bottom: bar1.High, Index: i - 1})
		} else if bar1.Low.GreaterThan(bar3.High) && bar1.Low.Sub(bar3.High).GreaterThan(minGap) {
			gaps = append(gaps, FairValueGap{Bullish: false, Top: bar1.Low, Bottom: bar3.High, Index: i - 1})
		}
	}
	return gaps
}

func (a *SMCAnalyzer) detectSweeps(candles []types.Candle, swingHighs, swingLows []int) []LiquiditySweep {
	var sweeps []LiquiditySweep
	last := len(candles) - 1

	for _, idx := range swingHighs {
		if idx >= last {
			continue
		}
		level := candles[idx].High
		for j := idx + 1; j <= last; j++ {
			if candles[j].High.GreaterThan(level) && candles[j].Close.LessThan(level) {
				sweeps = append(sweeps, LiquiditySweep{Bullish: false, Level: level, Index: j})
			}
		}
	}
	for _, idx := range swingLows {
		if idx >= last {
			continue
		}
		level := candles[idx].Low
		for j := idx + 1; j <= last; j++ {
			if candles[j].Low.LessThan(level) && candles[j].Close.GreaterThan(level) {
				sweeps = append(sweeps, LiquiditySweep{Bullish: true, Level: level, Index: j})
			}
		}
	}
	return sweeps
}

func swingPoints(candles []types.Candle, lookback int) (highs, lows []int) {
	for i := lookback; i < len(candles)-lookback; i++ {
		isHigh, isLow := true, true
		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if candles[j].High.GreaterThanOrEqual(candles[i].High) {
				isHigh = false
			}
			if candles[j].Low.LessThanOrEqual(candles[i].Low) {
				isLow = false
			}
		}
		if isHigh {
			highs = append(highs, i)
		}
		if isLow {
			lows = append(lows, i)
		}
	}
	return highs, lows
}

func averageRange(candles []types.Candle) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range candles {
		sum = sum.Add(c.High.Sub(c.Low))
	}
	return sum.Div(decimal.NewFromInt(int64(len(candles))))
}

func highOf(candles []types.Candle, idx int) decimal.Decimal {
	return candles[idx].High
}
