// Package metrics provides Prometheus-backed observability for object pools.
// It implements the objpool.Collector interface so a pool can export
// checkout/checkin rates, wait latency, and utilization without knowing
// anything about Prometheus.
//
// # Basic Usage
//
//	collector := metrics.NewPoolCollector("https://api.example.com:443")
//	pool, err := objpool.New(10, hooks, objpool.WithCollector[*Conn](collector))
//
// All metrics share a single set of vectors registered once with the default
// registerer and are labeled by pool name, so any number of pools can be
// observed from one process.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registerOnce sync.Once

	checkoutsTotal      *prometheus.CounterVec
	checkinsTotal       *prometheus.CounterVec
	creationsTotal      *prometheus.CounterVec
	discardsTotal       *prometheus.CounterVec
	verifyFailuresTotal *prometheus.CounterVec
	checkoutWaitSeconds *prometheus.HistogramVec
	inUseGauge          *prometheus.GaugeVec
	freeGauge           *prometheus.GaugeVec
	capacityGauge       *prometheus.GaugeVec
)

func register() {
	checkoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "objpool",
		Name:      "checkouts_total",
		Help:      "Total objects handed out, by pool and reuse status",
	}, []string{"pool", "reused"})

	checkinsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "objpool",
		Name:      "checkins_total",
		Help:      "Total objects returned, by pool and whether discarded",
	}, []string{"pool", "discarded"})

	creationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "objpool",
		Name:      "creations_total",
		Help:      "Total objects created by the pool factory",
	}, []string{"pool"})

	discardsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "objpool",
		Name:      "discards_total",
		Help:      "Total objects discarded as broken or stale",
	}, []string{"pool"})

	verifyFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "objpool",
		Name:      "verification_failures_total",
		Help:      "Total newly created objects that failed verification",
	}, []string{"pool"})

	checkoutWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "objpool",
		Name:      "checkout_wait_seconds",
		Help:      "Time spent waiting for pool capacity",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"pool"})

	inUseGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "objpool",
		Name:      "in_use",
		Help:      "Objects currently checked out",
	}, []string{"pool"})

	freeGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "objpool",
		Name:      "free",
		Help:      "Released objects awaiting reuse",
	}, []string{"pool"})

	capacityGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "objpool",
		Name:      "capacity",
		Help:      "Configured pool capacity (0 = unbounded)",
	}, []string{"pool"})
}

// PoolCollector exports one pool's activity as Prometheus metrics.
// It satisfies objpool.Collector.
type PoolCollector struct {
	pool string
}

// NewPoolCollector creates a collector labeling all observations with the
// given pool name. Vector registration happens on first use.
func NewPoolCollector(pool string) *PoolCollector {
	registerOnce.Do(register)
	return &PoolCollector{pool: pool}
}

// ObserveCheckout records an object handout and the time spent waiting
// for capacity.
func (c *PoolCollector) ObserveCheckout(wait time.Duration, reused bool) {
	checkoutsTotal.WithLabelValues(c.pool, boolLabel(reused)).Inc()
	checkoutWaitSeconds.WithLabelValues(c.pool).Observe(wait.Seconds())
}

// ObserveCheckin records an object return.
func (c *PoolCollector) ObserveCheckin(discarded bool) {
	checkinsTotal.WithLabelValues(c.pool, boolLabel(discarded)).Inc()
}

// ObserveCreation records a factory invocation that produced an object.
func (c *PoolCollector) ObserveCreation() {
	creationsTotal.WithLabelValues(c.pool).Inc()
}

// ObserveDiscard records an object disposed as broken or stale, whether on
// check-in or during the free-set scan.
func (c *PoolCollector) ObserveDiscard() {
	discardsTotal.WithLabelValues(c.pool).Inc()
}

// ObserveVerificationFailure records a new object rejected by verification.
func (c *PoolCollector) ObserveVerificationFailure() {
	verifyFailuresTotal.WithLabelValues(c.pool).Inc()
}

// ObserveUsage updates the utilization gauges.
func (c *PoolCollector) ObserveUsage(inUse int64, free int) {
	inUseGauge.WithLabelValues(c.pool).Set(float64(inUse))
	freeGauge.WithLabelValues(c.pool).Set(float64(free))
}

// ObserveCapacity records the configured capacity.
func (c *PoolCollector) ObserveCapacity(capacity int) {
	capacityGauge.WithLabelValues(c.pool).Set(float64(capacity))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
