// Package observability provides OpenTelemetry tracing and metrics for
// dbscope lifecycles.
//
// Every scope start and stop is wrapped in a span, and database creation,
// database drops and rollbacks are counted. When no provider is installed
// the global no-op providers make all of this free.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultConfig("integration-tests"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, observability.DefaultConfig("integration-tests"))
//	defer mp.Shutdown(ctx)
package observability
