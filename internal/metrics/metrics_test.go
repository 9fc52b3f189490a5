package metrics_test

import (
	"testing"

	"github.com/atlas-desktop/aurum-control-plane/internal/metrics"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestObserveExecutionRecordsLatencyAndSlippage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	slippage := 0.42
	m.ObserveExecution("XAUUSD", "buy", "success", 0.15, &slippage)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestObserveGovernanceDecisionDefaultsReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveGovernanceDecision(true, "")
	m.ObserveGovernanceDecision(false, "rate_limited")

	count := testutilCounterVecSum(t, m.GovernanceDecision)
	require.Equal(t, float64(2), count)
}

func TestObserveScanSetsGaugeAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.ObserveScan(1.25, 7)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func testutilCounterVecSum(t *testing.T, vec *prometheus.CounterVec) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 16)
	vec.Collect(ch)
	close(ch)

	var sum float64
	for m := range ch {
		pb := &dto.Metric{}
		require.NoError(t, m.Write(pb))
		sum += pb.GetCounter().GetValue()
	}
	return sum
}
