package toolcall

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records function executions. Create it once per Registerer.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the execution collectors on reg. A nil reg uses the
// default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolcall",
			Name:      "executions_total",
			Help:      "Function executions by outcome.",
		}, []string{"function", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "toolcall",
			Name:      "execution_duration_seconds",
			Help:      "Wall-clock time of function executions.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
	}
}

// Execution outcome labels.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeAborted = "aborted"
)

func (m *Metrics) observe(function, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(function, status).Inc()
	m.duration.WithLabelValues(function).Observe(d.Seconds())
}
