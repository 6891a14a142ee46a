package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/wirekit/logger"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the service.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) *MeterConfig {
	return &MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter initializes the OpenTelemetry meter provider.
// Returns a MeterProvider that should be shut down on application exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	readerOpts := []sdkmetric.PeriodicReaderOption{}
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metrics holds OpenTelemetry metric instruments for transport observability.
// All recorder methods are safe to call on a nil receiver so that hubs and
// connections can run without a meter wired up.
type Metrics struct {
	connectionsActive metric.Int64UpDownCounter
	framesSent        metric.Int64Counter
	framesReceived    metric.Int64Counter
	broadcastFailures metric.Int64Counter
	requestsPending   metric.Int64UpDownCounter
	requestDuration   metric.Float64Histogram
	requestTimeouts   metric.Int64Counter
	errorTotal        metric.Int64Counter
}

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	connectionsActive, err := meter.Int64UpDownCounter("connections.active",
		metric.WithDescription("Number of currently open connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connections.active gauge: %w", err)
	}

	framesSent, err := meter.Int64Counter("frames.sent",
		metric.WithDescription("Total number of frames written to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames.sent counter: %w", err)
	}

	framesReceived, err := meter.Int64Counter("frames.received",
		metric.WithDescription("Total number of frames received from peers"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames.received counter: %w", err)
	}

	broadcastFailures, err := meter.Int64Counter("broadcast.failures",
		metric.WithDescription("Per-connection delivery failures during broadcasts"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating broadcast.failures counter: %w", err)
	}

	requestsPending, err := meter.Int64UpDownCounter("requests.pending",
		metric.WithDescription("Number of in-flight request/response exchanges"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating requests.pending gauge: %w", err)
	}

	requestDuration, err := meter.Float64Histogram("request.duration",
		metric.WithDescription("Duration of request/response exchanges in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request.duration histogram: %w", err)
	}

	requestTimeouts, err := meter.Int64Counter("request.timeouts",
		metric.WithDescription("Requests that expired before a response arrived"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating request.timeouts counter: %w", err)
	}

	errorTotal, err := meter.Int64Counter("errors.total",
		metric.WithDescription("Total errors by type and component"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating errors.total counter: %w", err)
	}

	return &Metrics{
		connectionsActive: connectionsActive,
		framesSent:        framesSent,
		framesReceived:    framesReceived,
		broadcastFailures: broadcastFailures,
		requestsPending:   requestsPending,
		requestDuration:   requestDuration,
		requestTimeouts:   requestTimeouts,
		errorTotal:        errorTotal,
	}, nil
}

// ConnectionOpened increments the active connection count for a transport.
func (m *Metrics) ConnectionOpened(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
	))
}

// ConnectionClosed decrements the active connection count for a transport.
func (m *Metrics) ConnectionClosed(ctx context.Context, transport string) {
	if m == nil {
		return
	}
	m.connectionsActive.Add(ctx, -1, metric.WithAttributes(
		attribute.String("transport", transport),
	))
}

// RecordFrameSent counts a frame written to a client.
func (m *Metrics) RecordFrameSent(ctx context.Context, transport, event string) {
	if m == nil {
		return
	}
	m.framesSent.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("event", event),
	))
}

// RecordFrameReceived counts a frame received from a peer.
func (m *Metrics) RecordFrameReceived(ctx context.Context, transport, event string) {
	if m == nil {
		return
	}
	m.framesReceived.Add(ctx, 1, metric.WithAttributes(
		attribute.String("transport", transport),
		attribute.String("event", event),
	))
}

// RecordBroadcastFailure counts a per-connection delivery failure during a broadcast.
func (m *Metrics) RecordBroadcastFailure(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.broadcastFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// RequestStarted increments the pending request count.
func (m *Metrics) RequestStarted(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.requestsPending.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// RequestSettled decrements the pending count and records the exchange duration.
// Status is "ok", "timeout", "closed", "cancelled", or "error".
func (m *Metrics) RequestSettled(ctx context.Context, event, status string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("event", event),
	)
	m.requestsPending.Add(ctx, -1, attrs)
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("status", status),
	))
	if status == "timeout" {
		m.requestTimeouts.Add(ctx, 1, attrs)
	}
}

// RecordError records an error by type and component.
func (m *Metrics) RecordError(ctx context.Context, errType, component string) {
	if m == nil {
		return
	}
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", errType),
		attribute.String("component", component),
	))
}
