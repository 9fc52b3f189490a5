// Package scanner fans the signal pipeline across a configured universe of
// symbols and timeframes, persisting ranked signals per scan.
package scanner

import (
	"encoding/json"

	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// DefaultUniverse is used whenever SCANNER_UNIVERSE_JSON is unset or invalid.
func DefaultUniverse() types.Universe {
	return types.Universe{
		Symbols: []types.UniverseSymbol{
			{Symbol: "XAUUSD", Weight: 1.0},
			{Symbol: "XAGUSD", Weight: 0.7},
			{Symbol: "XPTUSD", Weight: 0.4},
			{Symbol: "XPDUSD", Weight: 0.4},
			{Symbol: "EURUSD", Weight: 0.3},
			{Symbol: "USDJPY", Weight: 0.3},
		},
		Timeframes: []string{"M5", "M15", "H1"},
		MinCandles: 200,
		TopK:       10,
	}
}

// ParseUniverse merges the raw JSON universe descriptor over the defaults,
// falling back entirely to defaults on any parse error or non-object input.
func ParseUniverse(raw string) types.Universe {
	def := DefaultUniverse()
	if raw == "" {
		return def
	}

	var partial struct {
		Symbols    []types.UniverseSymbol `json:"symbols"`
		Timeframes []string               `json:"timeframes"`
		MinCandles *int                   `json:"min_candles"`
		TopK       *int                   `json:"top_k"`
	}
	if err := json.Unmarshal([]byte(raw), &partial); err != nil {
		return def
	}

	merged := def
	if len(partial.Symbols) > 0 {
		merged.Symbols = partial.Symbols
	}
	if len(partial.Timeframes) > 0 {
		merged.Timeframes = partial.Timeframes
	}
	if partial.MinCandles != nil {
		merged.MinCandles = *partial.MinCandles
	}
	if partial.TopK != nil {
		merged.TopK = *partial.TopK
	}
	return merged
}

// RankScore applies the symbol weight to a base pipeline score.
func RankScore(baseScore, symbolWeight float64) float64 {
	return baseScore * symbolWeight
}
