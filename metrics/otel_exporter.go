package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
	collector     Collector

	// OTel meters and instruments
	meter              metric.Meter
	statusCountGauge   metric.Int64ObservableGauge
	providerCountGauge metric.Int64ObservableGauge
	throughputGauge    metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format.
// A nil collector exports only the notification counters.
func NewOTelExporter(collector Collector) (*OTelExporter, error) {
	// Each exporter owns its registry so several can coexist in one process
	registry := prometheus.NewRegistry()

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)

	// Create meter with service info
	meter := meterProvider.Meter(
		"webhook-gateway",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		registry:      registry,
		collector:     collector,
		meter:         meter,
	}

	if collector != nil {
		if err := oe.registerInstruments(); err != nil {
			return nil, fmt.Errorf("registering instruments: %w", err)
		}
	}

	return oe, nil
}

// registerInstruments creates and registers the store gauges
func (oe *OTelExporter) registerInstruments() error {
	var err error

	// Status count gauge (per status)
	oe.statusCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.status.count",
		metric.WithDescription("Number of stored events by status"),
		metric.WithUnit("{events}"),
		metric.WithInt64Callback(oe.observeStatusCounts),
	)
	if err != nil {
		return fmt.Errorf("creating status count gauge: %w", err)
	}

	// Provider count gauge (per provider)
	oe.providerCountGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.provider.events",
		metric.WithDescription("Number of stored events by provider"),
		metric.WithUnit("{events}"),
		metric.WithInt64Callback(oe.observeProviderCounts),
	)
	if err != nil {
		return fmt.Errorf("creating provider count gauge: %w", err)
	}

	// Throughput gauge (completed events over time windows)
	oe.throughputGauge, err = oe.meter.Int64ObservableGauge(
		"webhook.throughput",
		metric.WithDescription("Number of events completed over time window"),
		metric.WithUnit("{events}"),
		metric.WithInt64Callback(oe.observeThroughput),
	)
	if err != nil {
		return fmt.Errorf("creating throughput gauge: %w", err)
	}

	return nil
}

// observeStatusCounts is a callback that reports event counts by status
func (oe *OTelExporter) observeStatusCounts(ctx context.Context, observer metric.Int64Observer) error {
	statusCounts, err := oe.collector.GetStatusCounts(ctx)
	if err != nil {
		return err
	}

	for status, count := range statusCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("webhook.status", status),
		))
	}

	return nil
}

// observeProviderCounts is a callback that reports event counts by provider
func (oe *OTelExporter) observeProviderCounts(ctx context.Context, observer metric.Int64Observer) error {
	providerCounts, err := oe.collector.GetProviderCounts(ctx)
	if err != nil {
		return err
	}

	for provider, count := range providerCounts {
		observer.Observe(count, metric.WithAttributes(
			attribute.String("webhook.provider", provider),
		))
	}

	return nil
}

// observeThroughput is a callback that reports throughput metrics
func (oe *OTelExporter) observeThroughput(ctx context.Context, observer metric.Int64Observer) error {
	throughput, err := oe.collector.GetThroughput(ctx)
	if err != nil {
		return err
	}

	observer.Observe(throughput.LastMinute, metric.WithAttributes(
		attribute.String("time.window", "1m"),
	))
	observer.Observe(throughput.LastFiveMinutes, metric.WithAttributes(
		attribute.String("time.window", "5m"),
	))
	observer.Observe(throughput.LastFifteenMinutes, metric.WithAttributes(
		attribute.String("time.window", "15m"),
	))

	return nil
}

// Observer returns a notification observer whose counters are exported
// alongside the gauges
func (oe *OTelExporter) Observer() (*Observer, error) {
	return NewObserver(oe.meter)
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return promhttp.HandlerFor(oe.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
