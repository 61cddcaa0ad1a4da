// Package telemetry wires OpenTelemetry metrics into a Prometheus registry.
//
// Instruments created through otel.Meter anywhere in the process are exported
// on the /metrics scrape endpoint backed by Registry().
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"go.opentelemetry.io/otel"
)

// Config identifies the service in exported metrics.
type Config struct {
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
}

// Telemetry owns the metric pipeline for the process.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	registry      *prometheus.Registry
}

// Setup builds the metric pipeline and installs it as the global meter
// provider.
func Setup(cfg *Config) (*Telemetry, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "redactd"
	}

	// A standalone resource avoids schema URL conflicts with
	// resource.Default(), which may use a different semconv version.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(mp)

	return &Telemetry{
		meterProvider: mp,
		registry:      registry,
	}, nil
}

// Registry returns the Prometheus registry backing the scrape endpoint.
func (t *Telemetry) Registry() *prometheus.Registry {
	return t.registry
}

// Shutdown flushes and stops the metric pipeline.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.meterProvider == nil {
		return nil
	}
	return t.meterProvider.Shutdown(ctx)
}
