package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dealdesk"

// Metrics holds the service's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	webhookEvents      *prometheus.CounterVec
	webhookDuration    *prometheus.HistogramVec
	stageTransitions   *prometheus.CounterVec
	invoiceIssuance    *prometheus.CounterVec
	artifactFailures   *prometheus.CounterVec
	alertsRaised       *prometheus.CounterVec
	alertStreamClients prometheus.Gauge
	alertStreamDropped prometheus.Counter
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name. Other registration errors panic.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		webhookEvents: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Signature webhook events by provider and processing outcome.",
		}, []string{"provider", "outcome"})),
		webhookDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "duration_seconds",
			Help:      "Time spent handling a signature webhook.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"})),
		stageTransitions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "deal",
			Name:      "stage_transitions_total",
			Help:      "Deal stage changes by target stage.",
		}, []string{"stage"})),
		invoiceIssuance: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoice",
			Name:      "issuance_total",
			Help:      "Invoice issuance attempts by result (issued, existing, failed).",
		}, []string{"result"})),
		artifactFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signing",
			Name:      "artifact_failures_total",
			Help:      "Signed documents that could not be fetched or stored.",
		}, []string{"provider", "step"})),
		alertsRaised: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "raised_total",
			Help:      "Operator alerts raised by kind.",
		}, []string{"kind"})),
		alertStreamClients: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "stream_clients",
			Help:      "Operators connected to the alert stream.",
		})),
		alertStreamDropped: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "stream_dropped_total",
			Help:      "Stream messages skipped because a client's buffer was full.",
		})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) ObserveWebhook(provider, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, outcome).Inc()
	m.webhookDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) IncStageTransition(stage string) {
	if m == nil {
		return
	}
	m.stageTransitions.WithLabelValues(stage).Inc()
}

func (m *Metrics) IncInvoiceIssuance(result string) {
	if m == nil {
		return
	}
	m.invoiceIssuance.WithLabelValues(result).Inc()
}

func (m *Metrics) IncArtifactFailure(provider, step string) {
	if m == nil {
		return
	}
	m.artifactFailures.WithLabelValues(provider, step).Inc()
}

func (m *Metrics) IncAlert(kind string) {
	if m == nil {
		return
	}
	m.alertsRaised.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetAlertStreamClients(n int) {
	if m == nil {
		return
	}
	m.alertStreamClients.Set(float64(n))
}

func (m *Metrics) AddAlertStreamDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.alertStreamDropped.Add(float64(n))
}
