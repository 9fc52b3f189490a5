package rules

import (
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"github.com/shopspring/decimal"
)

// ValueAreaPosition classifies where the current price sits relative to the
// value area built from the volume histogram.
type ValueAreaPosition string

const (
	PositionInsideValueArea ValueAreaPosition = "inside"
	PositionAboveValueArea  ValueAreaPosition = "above"
	PositionBelowValueArea  ValueAreaPosition = "below"
)

// VolumeProfileResult is the output of the volume-profile analyzer.
type VolumeProfileResult struct {
	POC      decimal.Decimal
	VAH      decimal.Decimal
	VAL      decimal.Decimal
	Position ValueAreaPosition
}

// VolumeProfileConfig tunes the histogram row count and value-area coverage.
type VolumeProfileConfig struct {
	RowSize             int     // number of price bins across the window
	ValueAreaCoverage   float64 // fraction of total volume the value area must bracket
}

// DefaultVolumeProfileConfig returns sensible defaults.
func DefaultVolumeProfileConfig() *VolumeProfileConfig {
	return &VolumeProfileConfig{RowSize: 24, ValueAreaCoverage: 0.70}
}

// VolumeProfileAnalyzer builds a price/volume histogram over a candle window.
type VolumeProfileAnalyzer struct {
	cfg *VolumeProfileConfig
}

// NewVolumeProfileAnalyzer constructs a VolumeProfileAnalyzer.
func NewVolumeProfileAnalyzer(cfg *VolumeProfileConfig) *VolumeProfileAnalyzer {
	if cfg == nil {
		cfg = DefaultVolumeProfileConfig()
	}
	return &VolumeProfileAnalyzer{cfg: cfg}
}

// Analyze builds the histogram, locates the POC, expands to the value area,
// and classifies the current close's position.
func (a *VolumeProfileAnalyzer) Analyze(candles []types.Candle) VolumeProfileResult {
	var res VolumeProfileResult
	if len(candles) == 0 {
		return res
	}

	lo, hi := rangeOf(candles)
	if lo.Equal(hi) {
		res.POC, res.VAH, res.VAL = lo, hi, lo
		return res
	}

	rows := a.cfg.RowSize
	if rows < 1 {
		rows = 1
	}
	binSize := hi.Sub(lo).Div(decimal.NewFromInt(int64(rows)))
	volumes := make([]decimal.Decimal, rows)
	for i := range volumes {
		volumes[i] = decimal.Zero
	}

	for _, c := range candles {
		mid := c.High.Add(c.Low).Div(decimal.NewFromInt(2))
		bin := binIndex(mid, lo, binSize, rows)
		volumes[bin] = volumes[bin].Add(c.Volume)
	}

	pocIdx := 0
	for i, v := range volumes {
		if v.GreaterThan(volumes[pocIdx]) {
			pocIdx = i
		}
	}
	res.POC = lo.Add(binSize.Mul(decimal.NewFromInt(int64(pocIdx))).Add(binSize.Div(decimal.NewFromInt(2))))

	total := decimal.Zero
	for _, v := range volumes {
		total = total.Add(v)
	}
	target := total.Mul(decimal.NewFromFloat(a.cfg.ValueAreaCoverage))

	lowIdx, highIdx := pocIdx, pocIdx
	covered := volumes[pocIdx]
	for covered.LessThan(target) && (lowIdx > 0 || highIdx < rows-1) {
		expandLow := lowIdx > 0
		expandHigh := highIdx < rows-1
		switch {
		case expandLow && expandHigh:
			if volumes[lowIdx-1].GreaterThanOrEqual(volumes[highIdx+1]) {
				lowIdx--
				covered = covered.Add(volumes[lowIdx])
			} else {
				highIdx++
				covered = covered.Add(volumes[highIdx])
			}
		case expandLow:
			lowIdx--
			covered = covered.Add(volumes[lowIdx])
		case expandHigh:
			highIdx++
			covered = covered.Add(volumes[highIdx])
		}
	}

	res.VAL = lo.Add(binSize.Mul(decimal.NewFromInt(int64(lowIdx))))
	res.VAH = lo.Add(binSize.Mul(decimal.NewFromInt(int64(highIdx + 1))))

	current := candles[len(candles)-1].Close
	switch {
	case current.GreaterThan(res.VAH):
		res.Position = PositionAboveValueArea
	case current.LessThan(res.VAL):
		res.Position = PositionBelowValueArea
	default:
		res.Position = PositionInsideValueArea
	}

	return res
}

func rangeOf(candles []types.Candle) (lo, hi decimal.Decimal) {
	lo, hi = candles[0].Low, candles[0].High
	for _, c := range candles[1:] {
		if c.Low.LessThan(lo) {
			lo = c.Low
		}
		if c.High.GreaterThan(hi) {
			hi = c.High
		}
	}
	return lo, hi
}

func binIndex(price, lo, binSize decimal.Decimal, rows int) int {
	if binSize.IsZero() {
		return 0
	}
	idxDec := price.Sub(lo).Div(binSize)
	idx, _ := idxDec.Float64()
	i := int(idx)
	if i < 0 {
		i = 0
	}
	if i >= rows {
		i = rows - 1
	}
	return i
}
