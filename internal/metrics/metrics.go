package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's instrumentation. One instance is shared by
// all monitored environments; the environment label keeps series separate.
type Metrics struct {
	CyclesTotal       *prometheus.CounterVec
	CycleDuration     *prometheus.HistogramVec
	FiringsTotal      *prometheus.CounterVec
	AlertsCreated     prometheus.Counter
	EscalationsTotal  *prometheus.CounterVec
	RemediationsTotal *prometheus.CounterVec
}

// New registers the pipeline metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "axmon_evaluation_cycles_total",
			Help: "Evaluation cycles run, by environment and status.",
		}, []string{"environment", "status"}),
		CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "axmon_evaluation_cycle_duration_seconds",
			Help:    "Duration of one evaluation cycle.",
			Buckets: prometheus.DefBuckets,
		}, []string{"environment"}),
		FiringsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "axmon_rule_firings_total",
			Help: "Rule firings, by rule kind.",
		}, []string{"kind"}),
		AlertsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "axmon_alerts_created_total",
			Help: "Alerts created by the correlator.",
		}),
		EscalationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "axmon_escalations_total",
			Help: "Escalation dispatches, by outcome.",
		}, []string{"outcome"}),
		RemediationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "axmon_remediations_total",
			Help: "Remediation executions, by outcome.",
		}, []string{"outcome"}),
	}
}
