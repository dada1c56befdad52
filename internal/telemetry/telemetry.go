// Package telemetry wires tracing and metrics: spans go to an OTLP collector
// when one is configured, metrics are served in Prometheus format.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/nextlevelbuilder/voxroom/internal/tracing/otelexport"
)

// Config configures telemetry.
type Config struct {
	ServiceName string
	Version     string
	OTLP        otelexport.Config // tracing is off when Endpoint is empty
	Metrics     bool
}

// Telemetry holds the installed providers.
type Telemetry struct {
	Metrics *Metrics
	Handler http.Handler // Prometheus scrape handler, nil when metrics are off

	shutdown []func(context.Context) error
}

// Setup installs global tracer and meter providers.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voxroom"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{}

	if cfg.OTLP.Endpoint != "" {
		exp, err := otelexport.New(ctx, cfg.OTLP, res)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(exp.Provider())
		t.shutdown = append(t.shutdown, exp.Shutdown)
	}

	if cfg.Metrics {
		promExporter, err := prometheus.New()
		if err != nil {
			slog.Warn("failed to initialize prometheus exporter", "error", err)
		} else {
			mp := sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(promExporter),
				sdkmetric.WithResource(res),
			)
			otel.SetMeterProvider(mp)
			t.Handler = promhttp.Handler()
			t.shutdown = append(t.shutdown, mp.Shutdown)
		}
	}

	m, err := NewMetrics(otel.Meter("voxroom"))
	if err != nil {
		return nil, err
	}
	t.Metrics = m
	return t, nil
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		if err := t.shutdown[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
