package marketplace

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	volume     prometheus.Counter
}

func NewMetrics(r prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "operations_total",
			Help:      "number of successful ledger operations",
		}, []string{"operation"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "failures_total",
			Help:      "number of rejected ledger operations by error kind",
		}, []string{"operation", "kind"}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketplace",
			Name:      "sales_volume_qa",
			Help:      "sum of settled listing prices in Qa",
		}),
	}

	for _, c := range []prometheus.Collector{m.operations, m.failures, m.volume} {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) success(operation string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation).Inc()
}

func (m *Metrics) failure(operation string, err error) {
	if m == nil {
		return
	}

	kind := "internal"
	var lErr *Error
	if errors.As(err, &lErr) {
		kind = string(lErr.Kind)
	}
	m.failures.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) sale(price float64) {
	if m == nil {
		return
	}
	m.volume.Add(price)
}
