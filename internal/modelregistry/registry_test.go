package modelregistry_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/aurum-control-plane/internal/modelregistry"
	"github.com/stretchr/testify/require"
)

func writeArtifact(t *testing.T, dir, name string, buyWeight float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	artifact := map[string]any{
		"features":     []string{"rsi", "macd"},
		"sell_weights": map[string]float64{"rsi": -0.1, "macd": -0.1},
		"hold_weights": map[string]float64{"rsi": 0.0, "macd": 0.0},
		"buy_weights":  map[string]float64{"rsi": buyWeight, "macd": buyWeight},
		"bias":         [3]float64{0, 0, 0},
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestJSONLoaderPredictsFromWeights(t *testing.T) {
	dir := t.TempDir()
	path := writeArtifact(t, dir, "xgboost.json", 1.0)

	predictor, err := modelregistry.JSONLoader(path)
	require.NoError(t, err)
	require.Equal(t, []string{"rsi", "macd"}, predictor.FeatureNames())

	probs := predictor.PredictProba(map[string]float64{"rsi": 2.0, "macd": 2.0})
	require.InDelta(t, 1.0, probs[0]+probs[1]+probs[2], 1e-9)
	require.Greater(t, probs[2], probs[0], "strong positive features should favor buy")
}

func TestJSONLoaderRejectsMissingFeatures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"features":[]}`), 0o644))

	_, err := modelregistry.JSONLoader(path)
	require.Error(t, err)
}

func TestEnsembleAveragesPredictors(t *testing.T) {
	dir := t.TempDir()
	xgb, err := modelregistry.JSONLoader(writeArtifact(t, dir, "xgb.json", 1.0))
	require.NoError(t, err)
	lgbm, err := modelregistry.JSONLoader(writeArtifact(t, dir, "lgbm.json", 0.2))
	require.NoError(t, err)

	features := map[string]float64{"rsi": 1.5, "macd": 1.5}
	want0 := mustProbs(t, xgb, features)
	want1 := mustProbs(t, lgbm, features)

	got, err := modelregistry.Ensemble([]modelregistry.Predictor{xgb, lgbm}, features)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.InDelta(t, (want0[i]+want1[i])/2, got[i], 1e-9)
	}
}

func TestEnsembleRejectsEmptyInput(t *testing.T) {
	_, err := modelregistry.Ensemble(nil, map[string]float64{})
	require.Error(t, err)
}

func TestDirectionPicksNeutralOnCloseCall(t *testing.T) {
	action, conf := modelregistry.Direction([3]float64{0.48, 0.04, 0.48})
	require.Equal(t, "NEUTRAL", string(action))
	require.GreaterOrEqual(t, conf, 0.5)
}

func TestDirectionPicksBuyOnClearSignal(t *testing.T) {
	action, conf := modelregistry.Direction([3]float64{0.05, 0.1, 0.85})
	require.Equal(t, "BUY", string(action))
	require.InDelta(t, 0.85, conf, 1e-9)
}

func mustProbs(t *testing.T, p modelregistry.Predictor, features map[string]float64) [3]float64 {
	t.Helper()
	row := make(map[string]float64, len(p.FeatureNames()))
	for _, name := range p.FeatureNames() {
		row[name] = features[name]
	}
	return p.PredictProba(row)
}
