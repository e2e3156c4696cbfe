package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	m.ObserveWebhook("docusign", "applied", 20*time.Millisecond)
	m.ObserveWebhook("docusign", "duplicate", time.Millisecond)
	m.ObserveWebhook("docusign", "duplicate", time.Millisecond)
	m.IncInvoiceIssuance("issued")
	m.IncAlert("INVOICE_ISSUANCE_FAILED")
	m.IncArtifactFailure("docusign", "fetch")
	m.IncStageTransition("COMPLETED")
	m.SetAlertStreamClients(3)
	m.AddAlertStreamDropped(2)
	m.AddAlertStreamDropped(0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("docusign", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("docusign", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invoiceIssuance.WithLabelValues("issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsRaised.WithLabelValues("INVOICE_ISSUANCE_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.artifactFailures.WithLabelValues("docusign", "fetch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageTransitions.WithLabelValues("COMPLETED")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.alertStreamClients))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.alertStreamDropped))
}

func TestMustNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := MustNewMetrics(reg)
	second := MustNewMetrics(reg)

	first.IncInvoiceIssuance("failed")
	second.IncInvoiceIssuance("failed")

	require.Same(t, first.invoiceIssuance, second.invoiceIssuance)
	assert.Equal(t, 2.0, testutil.ToFloat64(second.invoiceIssuance.WithLabelValues("failed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWebhook("native", "applied", time.Second)
		m.IncStageTransition("LIVE")
		m.IncInvoiceIssuance("issued")
		m.IncArtifactFailure("native", "store")
		m.IncAlert("X")
		m.SetAlertStreamClients(1)
	})
}
