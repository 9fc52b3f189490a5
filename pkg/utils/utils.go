// Package utils provides small decimal/statistics helpers shared by the
// predictive report generator and the scheduler's auto-select position sizing.
package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// CalculateMean calculates the mean of decimal values.
func CalculateMean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

// CalculateStdDev calculates the sample standard deviation of decimal values.
func CalculateStdDev(values []decimal.Decimal) decimal.Decimal {
	if len(values) < 2 {
		return decimal.Zero
	}
	mean := CalculateMean(values)
	sumSquares := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSquares = sumSquares.Add(diff.Mul(diff))
	}
	variance := sumSquares.Div(decimal.NewFromInt(int64(len(values) - 1)))
	return decimal.NewFromFloat(math.Sqrt(variance.InexactFloat64()))
}

// CalculateSharpeRatio annualizes the excess mean return over its standard
// deviation, given the number of return periods in a year.
func CalculateSharpeRatio(returns []decimal.Decimal, riskFreeRate decimal.Decimal, periodsPerYear int) decimal.Decimal {
	if len(returns) < 2 {
		return decimal.Zero
	}
	meanReturn := CalculateMean(returns)
	stdDev := CalculateStdDev(returns)
	if stdDev.IsZero() {
		return decimal.Zero
	}
	annualizationFactor := decimal.NewFromFloat(math.Sqrt(float64(periodsPerYear)))
	excessReturn := meanReturn.Sub(riskFreeRate.Div(decimal.NewFromInt(int64(periodsPerYear))))
	return excessReturn.Div(stdDev).Mul(annualizationFactor)
}

// CalculateMaxDrawdown returns the largest peak-to-trough decline observed
// in an equity curve, expressed as a fraction of the peak.
func CalculateMaxDrawdown(equity []decimal.Decimal) decimal.Decimal {
	if len(equity) < 2 {
		return decimal.Zero
	}
	maxDrawdown := decimal.Zero
	peak := equity[0]
	for _, value := range equity {
		if value.GreaterThan(peak) {
			peak = value
		}
		if peak.IsZero() {
			continue
		}
		drawdown := peak.Sub(value).Div(peak)
		if drawdown.GreaterThan(maxDrawdown) {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// CalculateWinRate returns the fraction of positive PnL values.
func CalculateWinRate(pnls []decimal.Decimal) decimal.Decimal {
	if len(pnls) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, pnl := range pnls {
		if pnl.GreaterThan(decimal.Zero) {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(pnls))))
}

// CalculatePositionSize sizes a fixed-fractional-risk position: risk a fixed
// percent of balance against the stop-loss distance, expressed in XAU/USD
// pips (1 pip = 0.1), then clamp to [0.01, maxLots] lots.
func CalculatePositionSize(balance, entry, stopLoss, riskPercent, maxLots decimal.Decimal) decimal.Decimal {
	slDistance := entry.Sub(stopLoss).Abs()
	slPips := slDistance.Mul(decimal.NewFromInt(10))
	if slPips.IsZero() {
		return decimal.NewFromFloat(0.01)
	}

	riskAmount := balance.Mul(riskPercent)
	lots := riskAmount.Div(slPips)

	lots = ClampDecimal(lots, decimal.NewFromFloat(0.01), maxLots)
	return lots.Round(2)
}

// ClampDecimal clamps a value between min and max.
func ClampDecimal(value, min, max decimal.Decimal) decimal.Decimal {
	if value.LessThan(min) {
		return min
	}
	if value.GreaterThan(max) {
		return max
	}
	return value
}
