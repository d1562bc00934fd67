// Package telemetry wires OpenTelemetry metrics to a Prometheus scrape handler.
package telemetry

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

const meterName = "voicerelay/relayd"

// Config names the service in exported metrics.
type Config struct {
	ServiceName string
	Environment string
}

// Telemetry owns the meter provider and the instruments relayd records.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler

	requests     metric.Int64Counter
	translations metric.Int64Counter
	duration     metric.Float64Histogram
}

// Setup builds a meter provider backed by a private Prometheus registry.
// When the exporter cannot be created the instruments still work but
// Handler reports 503.
func Setup(cfg Config, logger *slog.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "relayd"
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	t := &Telemetry{}
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		logger.Warn("failed to initialize prometheus exporter", slog.String("error", err.Error()))
		t.provider = sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
		t.handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "metrics unavailable", http.StatusServiceUnavailable)
		})
	} else {
		t.provider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(exporter),
			sdkmetric.WithResource(res),
		)
		t.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	meter := t.provider.Meter(meterName)
	if t.requests, err = meter.Int64Counter("voicerelay.process.requests",
		metric.WithDescription("Process requests by outcome.")); err != nil {
		return nil, err
	}
	if t.translations, err = meter.Int64Counter("voicerelay.translations",
		metric.WithDescription("Translation attempts by backend and status.")); err != nil {
		return nil, err
	}
	if t.duration, err = meter.Float64Histogram("voicerelay.process.duration",
		metric.WithDescription("Time spent handling a process request."),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}

	logger.Info("telemetry initialized", slog.String("exporter", "prometheus"))
	return t, nil
}

// Handler serves the Prometheus exposition format.
func (t *Telemetry) Handler() http.Handler {
	return t.handler
}

// MeterProvider lets instrumented clients export through the same registry.
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.provider
}

// RecordRequest counts one /process call.
func (t *Telemetry) RecordRequest(ctx context.Context, outcome string, elapsed time.Duration) {
	if t == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	t.requests.Add(ctx, 1, attrs)
	t.duration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordTranslation counts one translation attempt.
func (t *Telemetry) RecordTranslation(ctx context.Context, backend string, status string) {
	if t == nil {
		return
	}
	t.translations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("status", status),
	))
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
