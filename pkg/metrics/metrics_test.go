package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/objpool/pkg/metrics"
	"github.com/ajitpratap0/objpool/pkg/objpool"
)

// The collector must satisfy the pool's observation interface.
var _ objpool.Collector = (*metrics.PoolCollector)(nil)

func gatherValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metric:
		for _, m := range mf.GetMetric() {
			for k, v := range labels {
				if !hasLabel(m, k, v) {
					continue metric
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return 0
}

func hasLabel(m *dto.Metric, key, value string) bool {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == key && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func TestPoolCollector(t *testing.T) {
	c := metrics.NewPoolCollector("test-pool")

	c.ObserveCapacity(7)
	c.ObserveCheckout(2*time.Millisecond, false)
	c.ObserveCheckout(0, true)
	c.ObserveCreation()
	c.ObserveCheckin(true)
	c.ObserveDiscard()
	c.ObserveVerificationFailure()
	c.ObserveUsage(1, 3)

	pool := map[string]string{"pool": "test-pool"}
	assert.Equal(t, 7.0, gatherValue(t, "objpool_capacity", pool))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_checkouts_total",
		map[string]string{"pool": "test-pool", "reused": "true"}))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_creations_total", pool))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_checkins_total",
		map[string]string{"pool": "test-pool", "discarded": "true"}))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_discards_total", pool))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_verification_failures_total", pool))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_in_use", pool))
	assert.Equal(t, 3.0, gatherValue(t, "objpool_free", pool))
}

func TestPoolIntegration(t *testing.T) {
	c := metrics.NewPoolCollector("integration")
	pool, err := objpool.New(2, objpool.HookFuncs[int]{
		CreateFunc: func(ctx context.Context) (int, error) { return 42, nil },
	}, objpool.WithCollector[int](c))
	require.NoError(t, err)

	obj, err := pool.Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Put(obj))

	labels := map[string]string{"pool": "integration"}
	assert.Equal(t, 2.0, gatherValue(t, "objpool_capacity", labels))
	assert.Equal(t, 1.0, gatherValue(t, "objpool_creations_total", labels))
}
