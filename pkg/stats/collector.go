package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "authtrade"

// Collector groups the prometheus metrics of trade executions. A nil
// *Collector is valid and records nothing.
type Collector struct {
	phases         *prometheus.CounterVec
	executions     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	authorizations *prometheus.CounterVec
	nonces         *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_phase_transitions_total",
			Help:      "Number of transitions into each execution phase.",
		}, []string{"phase"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Number of terminated executions by outcome and error kind.",
		}, []string{"outcome", "kind"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Time from the creation of an execution to its termination.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		authorizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorizations_signed_total",
			Help:      "Number of signed trade authorizations by issuer.",
		}, []string{"issuer"}),
		nonces: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nonce_resolutions_total",
			Help:      "Number of pre-sign nonce resolutions by accessor.",
		}, []string{"source"}),
		reconciliation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Number of reconciled transactions by result.",
		}, []string{"result"}),
	}

	for _, collector := range []prometheus.Collector{
		c.phases, c.executions, c.duration,
		c.authorizations, c.nonces, c.reconciliation,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) PhaseEntered(phase string) {
	if c == nil {
		return
	}
	c.phases.WithLabelValues(phase).Inc()
}

func (c *Collector) ExecutionTerminated(outcome, kind string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.executions.WithLabelValues(outcome, kind).Inc()
	c.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (c *Collector) AuthorizationSigned(issuer string) {
	if c == nil {
		return
	}
	c.authorizations.WithLabelValues(issuer).Inc()
}

func (c *Collector) NonceResolved(source string) {
	if c == nil {
		return
	}
	c.nonces.WithLabelValues(source).Inc()
}

func (c *Collector) Reconciled(result string) {
	if c == nil {
		return
	}
	c.reconciliation.WithLabelValues(result).Inc()
}
