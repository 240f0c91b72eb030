package rwlock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	modeRead  = "read"
	modeWrite = "write"

	outcomeAcquired = "acquired"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeInvalid  = "invalid"
)

// Metrics collects acquisition statistics for one or more locks. Locks are
// told apart by the lock label (see WithName). A nil *Metrics records
// nothing.
type Metrics struct {
	acquisitions *prometheus.CounterVec
	releases     *prometheus.CounterVec
	callerErrors *prometheus.CounterVec
	wait         *prometheus.HistogramVec
}

// NewMetrics creates the lock collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rwlock",
			Name:      "acquisitions_total",
			Help:      "Lock acquisition attempts by mode and outcome.",
		}, []string{"lock", "mode", "outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rwlock",
			Name:      "releases_total",
			Help:      "Successful lock releases by mode.",
		}, []string{"lock", "mode"}),
		callerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rwlock",
			Name:      "caller_errors_total",
			Help:      "Calls rejected because the caller did not own the lock or destroyed it while busy.",
		}, []string{"lock", "op"}),
		wait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rwlock",
			Name:      "wait_seconds",
			Help:      "Time spent in successful acquisitions.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"lock", "mode"}),
	}

	for _, c := range []prometheus.Collector{m.acquisitions, m.releases, m.callerErrors, m.wait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) acquired(lock, mode string, waited time.Duration) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(lock, mode, outcomeAcquired).Inc()
	m.wait.WithLabelValues(lock, mode).Observe(waited.Seconds())
}

func (m *Metrics) failed(lock, mode, outcome string) {
	if m == nil {
		return
	}
	m.acquisitions.WithLabelValues(lock, mode, outcome).Inc()
}

func (m *Metrics) released(lock, mode string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(lock, mode).Inc()
}

func (m *Metrics) callerError(lock, op string) {
	if m == nil {
		return
	}
	m.callerErrors.WithLabelValues(lock, op).Inc()
}
