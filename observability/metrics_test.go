package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"lendcore/core/events"
)

func TestExecutorMetrics(t *testing.T) {
	m := Executor()
	before := testutil.ToFloat64(m.batches.WithLabelValues("rejected"))
	m.ObserveBatch(42, errors.New("boom"), time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.batches.WithLabelValues("rejected")))
	require.Equal(t, float64(42), testutil.ToFloat64(m.slot))

	m.ObserveInstruction("deposit_liquidity", nil)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.instructions.WithLabelValues("deposit_liquidity", "success")), float64(1))
}

func batchLatency(t *testing.T, m *executorMetrics) *dto.Histogram {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, m.latency.Write(&metric))
	return metric.GetHistogram()
}

func TestExecutorLatencyHistogram(t *testing.T) {
	m := Executor()
	before := batchLatency(t, m).GetSampleCount()
	m.ObserveBatch(7, nil, 3*time.Millisecond)
	hist := batchLatency(t, m)
	require.Equal(t, before+1, hist.GetSampleCount())
	require.GreaterOrEqual(t, hist.GetSampleSum(), 0.003)
}

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("tx", "POST", 422, time.Millisecond)
	require.GreaterOrEqual(t, testutil.ToFloat64(m.errors.WithLabelValues("tx", "POST", "422")), float64(1))
	m.RecordThrottle("", "")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")), float64(1))
}

func TestEventMetricsCountsByType(t *testing.T) {
	m := Events()
	e := events.OraclePriceUpdated{Price: 1}
	before := testutil.ToFloat64(m.emitted.WithLabelValues(e.EventType()))
	m.Emit(e)
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues(e.EventType())))
}
