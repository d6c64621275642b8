// Package observability wires OpenTelemetry tracing and metrics into
// streamkit.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, &cfg)
//	defer tp.Shutdown(ctx)
//
//	ctx, op := observability.StartOperation(ctx, observability.SpanConnect)
//	defer op.End(err)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//
//	metrics, err := observability.NewStreamMetrics(observability.Meter("streamd"))
//	metrics.EventBroadcast(ctx, delivered)
//
// A nil *StreamMetrics is valid and records nothing.
package observability
