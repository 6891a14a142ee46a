// Package observability provides OpenTelemetry tracing and metrics integration
// for wirekit transports.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("my-service"))
//	defer tp.Shutdown(ctx)
//
//	ctx, span := observability.StartSpan(ctx, observability.SpanBroadcast)
//	defer span.End()
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultMeterConfig("my-service"))
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewMetrics(observability.Meter("my-service"))
//	metrics.RecordFrameSent(ctx, "sse", "tick")
//
// All Metrics recorders are safe to call on a nil *Metrics, so transports
// can run without a meter wired up.
package observability
