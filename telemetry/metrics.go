// Package telemetry wires the OpenTelemetry metrics pipeline for the cache.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const meterName = "github.com/wolfeidau/doc-cache"

// Config configures the metrics system.
type Config struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// EnablePrometheus exposes collected metrics via the Handler.
	EnablePrometheus bool
}

// Telemetry owns the meter provider and the optional Prometheus handler.
// It is constructed once at startup and passed to the components that need
// a meter; there is no process-global registry involved.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// New builds the metrics pipeline.
func New(cfg Config) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "doc-cache"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	var (
		reader  sdkmetric.Reader
		handler http.Handler
	)
	if cfg.EnablePrometheus {
		registry := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		reader = exporter
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	} else {
		// Collect without exporting so instruments still work.
		reader = sdkmetric.NewManualReader()
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)

	return &Telemetry{
		provider: provider,
		handler:  handler,
	}, nil
}

// Meter returns the meter for cache instruments.
func (t *Telemetry) Meter() metric.Meter {
	return t.provider.Meter(meterName)
}

// Handler returns the Prometheus scrape handler, or nil when Prometheus is
// disabled.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
