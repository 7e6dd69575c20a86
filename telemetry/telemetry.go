// Package telemetry sets up OpenTelemetry metrics for the page cache and exposes them to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.34.0"
	"go.uber.org/zap"
)

// Config holds all the configuration for the telemetry system.
type Config struct {
	// Enabled toggles metrics collection on or off.
	Enabled bool `yaml:"enabled"`
	// ServiceName is the name of the service attached to every metric.
	ServiceName string `yaml:"service_name"`
	// PrometheusPort is the port on which to expose the /metrics endpoint. Zero disables the listener; the handler
	// is still available through Telemetry.Handler.
	PrometheusPort int `yaml:"prometheus_port"`
}

// Telemetry represents the active telemetry components.
type Telemetry struct {
	MeterProvider *sdkmetric.MeterProvider
	Meter         metric.Meter
	// Handler serves the Prometheus exposition format. Nil when telemetry is disabled.
	Handler http.Handler
	// Addr is the address the /metrics listener is bound to, empty if none.
	Addr string
}

// ShutdownFunc is a function that gracefully shuts down the telemetry providers.
type ShutdownFunc func(ctx context.Context) error

// New initializes the OpenTelemetry metrics SDK with a Prometheus exporter backed by its own registry, and starts
// serving /metrics when a port is configured.
func New(config Config, logger *zap.Logger) (*Telemetry, ShutdownFunc, error) {
	if !config.Enabled {
		return &Telemetry{
			Meter: noop.NewMeterProvider().Meter(""),
		}, func(ctx context.Context) error { return nil }, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceInstanceID(uuid.NewString()),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	tel := &Telemetry{
		MeterProvider: meterProvider,
		Meter:         meterProvider.Meter(config.ServiceName),
		Handler:       handler,
	}

	var server *http.Server
	if config.PrometheusPort > 0 {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.PrometheusPort))
		if err != nil {
			_ = meterProvider.Shutdown(context.Background())
			return nil, nil, fmt.Errorf("failed to listen for /metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		tel.Addr = listener.Addr().String()
		go func() {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("prometheus http server failed", zap.Error(err))
			}
		}()
	}

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if server != nil {
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("failed to shutdown metrics server: %w", err)
			}
		}
		if err := meterProvider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown meter provider: %w", err)
		}
		return nil
	}

	return tel, shutdown, nil
}
