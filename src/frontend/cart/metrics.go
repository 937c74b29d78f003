package cart

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts drawer activity across every shopper. A nil *Metrics is a
// no-op.
type Metrics struct {
	mutationTotal uint64
	failTotal     uint64
	busyTotal     uint64
	staleTotal    uint64
}

func NewMetrics(meter metric.Meter, log logrus.FieldLogger) *Metrics {
	m := &Metrics{}
	counters := []struct {
		name string
		v    *uint64
	}{
		{"cart_mutation_success_total", &m.mutationTotal},
		{"cart_mutation_fail_total", &m.failTotal},
		{"cart_mutation_busy_total", &m.busyTotal},
		{"cart_refresh_stale_total", &m.staleTotal},
	}
	for _, c := range counters {
		v := c.v
		_, err := meter.Int64ObservableCounter(
			c.name,
			metric.WithUnit("{ops}"),
			metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
				obs.Observe(int64(atomic.LoadUint64(v)))
				return nil
			}),
		)
		if err != nil {
			log.Warnf("failed to register metric %s: %v", c.name, err)
		}
	}
	return m
}

func (m *Metrics) incMutations() {
	if m != nil {
		atomic.AddUint64(&m.mutationTotal, 1)
	}
}

func (m *Metrics) incFailed() {
	if m != nil {
		atomic.AddUint64(&m.failTotal, 1)
	}
}

func (m *Metrics) incBusy() {
	if m != nil {
		atomic.AddUint64(&m.busyTotal, 1)
	}
}

func (m *Metrics) incStale() {
	if m != nil {
		atomic.AddUint64(&m.staleTotal, 1)
	}
}

// Counts reads the counters in declaration order.
func (m *Metrics) Counts() (mutations, failed, busy, stale uint64) {
	if m == nil {
		return 0, 0, 0, 0
	}
	return atomic.LoadUint64(&m.mutationTotal), atomic.LoadUint64(&m.failTotal),
		atomic.LoadUint64(&m.busyTotal), atomic.LoadUint64(&m.staleTotal)
}
