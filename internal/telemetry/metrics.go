package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	instrumentationName = "github.com/wolfeidau/pcasign"
)

// Metrics holds the OpenTelemetry instruments recorded by a provisioning run
type Metrics struct {
	CertificatesIssuedTotal metric.Int64Counter
	AuthoritiesCreatedTotal metric.Int64Counter
	KeysCreatedTotal        metric.Int64Counter

	StepDuration    metric.Float64Histogram
	StepErrorsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are bound to the global meter provider at first use, so call
// InitTelemetry before the first GetMetrics to export them.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.CertificatesIssuedTotal, _ = meter.Int64Counter(
		"pcasign.certificates.issued.total",
		metric.WithDescription("Total number of code signing certificates issued"),
		metric.WithUnit("{certificate}"),
	)

	m.AuthoritiesCreatedTotal, _ = meter.Int64Counter(
		"pcasign.authorities.created.total",
		metric.WithDescription("Total number of root certificate authorities created"),
		metric.WithUnit("{authority}"),
	)

	m.KeysCreatedTotal, _ = meter.Int64Counter(
		"pcasign.keys.created.total",
		metric.WithDescription("Total number of KMS signing keys created"),
		metric.WithUnit("{key}"),
	)

	m.StepDuration, _ = meter.Float64Histogram(
		"pcasign.step.duration",
		metric.WithDescription("Duration of provisioning steps"),
		metric.WithUnit("ms"),
	)

	m.StepErrorsTotal, _ = meter.Int64Counter(
		"pcasign.step.errors.total",
		metric.WithDescription("Total number of failed provisioning steps"),
		metric.WithUnit("{error}"),
	)

	return m
}
