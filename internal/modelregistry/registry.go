// Package modelregistry loads and caches per-(type,symbol,timeframe) model
// artifacts. Artifacts are opaque probability emitters the core only ever
// calls predict_proba on; training and serialization are out of scope.
package modelregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/atlas-desktop/aurum-control-plane/internal/store"
	"github.com/atlas-desktop/aurum-control-plane/pkg/types"
	"go.uber.org/zap"
)

// Predictor is the capability every loaded model artifact exposes: a
// probability vector [P(sell), P(hold), P(buy)] for one feature row, with
// features missing from the row imputed as 0.0 by the caller.
type Predictor interface {
	PredictProba(features map[string]float64) [3]float64
	FeatureNames() []string
}

// Loader constructs a Predictor from an artifact path. One Loader is
// registered per model kind (xgboost, lightgbm, lstm).
type Loader func(artifactPath string) (Predictor, error)

type cacheKey struct {
	modelType types.ModelKind
	symbol    string
	timeframe string
}

type cacheEntry struct {
	artifactPath string
	version      string
	predictor    Predictor
}

// Cache loads active registry rows and serves cached Predictors, reloading
// only when the active row's (artifact_path, version) changes.
type Cache struct {
	mu      sync.Mutex
	logger  *zap.Logger
	repo    *store.ModelRegistryRepository
	loaders map[types.ModelKind]Loader
	entries map[cacheKey]cacheEntry
}

// New constructs a Cache over the given registry repository and loaders.
func New(logger *zap.Logger, repo *store.ModelRegistryRepository, loaders map[types.ModelKind]Loader) *Cache {
	return &Cache{
		logger:  logger.Named("modelregistry"),
		repo:    repo,
		loaders: loaders,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Get returns the Predictor and registry entry for (modelType, symbol,
// timeframe), or (nil, nil, false) if no active model is registered, the
// artifact file is missing, or the artifact is malformed — all three are
// treated identically as model absence.
func (c *Cache) Get(ctx context.Context, modelType types.ModelKind, symbol, timeframe string) (Predictor, *types.ModelRegistryEntry, bool) {
	row, err := c.repo.Active(ctx, modelType, symbol, timeframe)
	if err != nil {
		return nil, nil, false
	}

	key := cacheKey{modelType: modelType, symbol: symbol, timeframe: timeframe}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && entry.artifactPath == row.ArtifactPath && entry.version == row.Version {
		return entry.predictor, row, true
	}

	loader, ok := c.loaders[modelType]
	if !ok {
		c.logger.Warn("no loader registered for model type", zap.String("model_type", string(modelType)))
		return nil, nil, false
	}

	predictor, err := loader(row.ArtifactPath)
	if err != nil {
		c.logger.Warn("loading model artifact failed, treating as absent",
			zap.String("path", row.ArtifactPath), zap.Error(err))
		return nil, nil, false
	}

	c.entries[key] = cacheEntry{artifactPath: row.ArtifactPath, version: row.Version, predictor: predictor}
	return predictor, row, true
}

// Ensemble returns the arithmetic mean probability vector across the given
// predictors, per the persisted hot path's xgboost+lightgbm averaging (and
// any lstm artifact present, included with equal weight).
func Ensemble(predictors []Predictor, features map[string]float64) ([3]float64, error) {
	if len(predictors) == 0 {
		return [3]float64{}, fmt.Errorf("modelregistry: no predictors to ensemble")
	}
	var sum [3]float64
	for _, p := range predictors {
		row := alignFeatures(features, p.FeatureNames())
		probs := p.PredictProba(row)
		for i := 0; i < 3; i++ {
			sum[i] += probs[i]
		}
	}
	n := float64(len(predictors))
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}, nil
}

func alignFeatures(features map[string]float64, names []string) map[string]float64 {
	row := make(map[string]float64, len(names))
	for _, name := range names {
		if v, ok := features[name]; ok {
			row[name] = v
		} else {
			row[name] = 0.0
		}
	}
	return row
}

// Direction derives a directional label and confidence from a [P(sell),
// P(hold), P(buy)] vector: argmax wins unless the buy/sell gap is under 0.05
// or hold wins, in which case it is neutral with confidence max(P(hold), 0.5).
func Direction(probs [3]float64) (types.SignalAction, float64) {
	pSell, pHold, pBuy := probs[0], probs[1], probs[2]

	argmax := 1 // hold
	best := pHold
	if pSell > best {
		argmax, best = 0, pSell
	}
	if pBuy > best {
		argmax, best = 2, pBuy
	}

	diff := pBuy - pSell
	if diff < 0 {
		diff = -diff
	}

	if diff < 0.05 || argmax == 1 {
		conf := pHold
		if conf < 0.5 {
			conf = 0.5
		}
		return types.ActionNeutral, conf
	}
	if argmax == 2 {
		return types.ActionBuy, pBuy
	}
	return types.ActionSell, pSell
}
