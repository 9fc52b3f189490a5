package modelregistry

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// linearArtifact is the on-disk shape a JSONLoader reads: a per-feature
// weight vector for each of the three outcome classes plus a bias term,
// scored with softmax. It stands in for the xgboost/lightgbm/lstm artifacts
// the core never trains or deserializes itself (out of scope per spec); it
// exists so Cache.Get has at least one reachable, testable Loader.
type linearArtifact struct {
	Features []string           `json:"features"`
	Sell     map[string]float64 `json:"sell_weights"`
	Hold     map[string]float64 `json:"hold_weights"`
	Buy      map[string]float64 `json:"buy_weights"`
	Bias     [3]float64         `json:"bias"`
}

type linearPredictor struct {
	features []string
	weights  [3]map[string]float64
	bias     [3]float64
}

func (p *linearPredictor) FeatureNames() []string { return p.features }

func (p *linearPredictor) PredictProba(row map[string]float64) [3]float64 {
	var scores [3]float64
	for i, w := range p.weights {
		sum := p.bias[i]
		for name, weight := range w {
			sum += weight * row[name]
		}
		scores[i] = sum
	}
	return softmax(scores)
}

func softmax(scores [3]float64) [3]float64 {
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	var exp [3]float64
	var sum float64
	for i, s := range scores {
		exp[i] = math.Exp(s - max)
		sum += exp[i]
	}
	var out [3]float64
	for i := range exp {
		out[i] = exp[i] / sum
	}
	return out
}

// JSONLoader reads a linearArtifact from artifactPath and returns a
// Predictor that scores it as a three-class softmax linear model. Registered
// per model kind so Cache.Get has a real artifact format to load against
// instead of every kind resolving to "no loader registered".
func JSONLoader(artifactPath string) (Predictor, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("modelregistry: reading artifact %s: %w", artifactPath, err)
	}

	var artifact linearArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("modelregistry: parsing artifact %s: %w", artifactPath, err)
	}
	if len(artifact.Features) == 0 {
		return nil, fmt.Errorf("modelregistry: artifact %s declares no features", artifactPath)
	}

	return &linearPredictor{
		features: artifact.Features,
		weights:  [3]map[string]float64{artifact.Sell, artifact.Hold, artifact.Buy},
		bias:     artifact.Bias,
	}, nil
}
