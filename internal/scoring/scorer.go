// Package scoring combines rule-analyzer outputs, model probabilities, and
// regime weights into a single weighted score, and enforces selection
// hysteresis so the system does not thrash between strategies.
package scoring

import (
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
)

// Input collects every signal the Scorer weighs.
type Input struct {
	BaseConfidence    float64 // 0..1
	Regime            types.RegimeType
	SupportedRegimes  []types.RegimeType
	KillzoneCanTrade  bool
	SpreadOK          bool
	DXYOK             bool
	RROK              bool
	RegimeWeights     map[string]float64
}

// Scorer combines Input into a types.ScoreBreakdown.
type Scorer struct{}

// New constructs a stateless Scorer.
func New() *Scorer {
	return &Scorer{}
}

// Score computes the weighted component breakdown and total.
func (s *Scorer) Score(in Input) types.ScoreBreakdown {
	components := map[string]float64{}
	var reasons []string

	components["confidence"] = 60 * clamp01(in.BaseConfidence)

	if len(in.SupportedRegimes) == 0 {
		components["regime_unknown"] = 0
	} else if regimeSupported(in.Regime, in.SupportedRegimes) {
		components["regime_match"] = 15
	} else {
		components["regime_mismatch"] = -20
		reasons = append(reasons, "Regime not supported by strategy")
	}

	if in.KillzoneCanTrade {
		components["killzone"] = 10
	} else {
		components["killzone"] = -50
		reasons = append(reasons, "Outside optimal trading hours")
	}

	if !in.SpreadOK {
		components["spread"] = -15
		reasons = append(reasons, "Spread/liquidity not acceptable")
	}

	if !in.DXYOK {
		components["dxy"] = -12
		reasons = append(reasons, "DXY context adverse")
	}

	if !in.RROK {
		components["rr"] = -10
		reasons = append(reasons, "Risk/Reward not acceptable")
	}

	weighted := applyWeights(components, in.RegimeWeights)

	total := 0.0
	for _, v := range weighted {
		total += v
	}

	return types.ScoreBreakdown{Total: total, Components: weighted, Reasons: reasons}
}

func applyWeights(components map[string]float64, weights map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(components))
	for k, v := range components {
		w := 1.0
		if weights != nil {
			if given, ok := weights[k]; ok {
				w = given
			}
		}
		out[k] = v * w
	}
	return out
}

func regimeSupported(regime types.RegimeType, supported []types.RegimeType) bool {
	for _, r := range supported {
		if r == regime {
			return true
		}
	}
	return false
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
