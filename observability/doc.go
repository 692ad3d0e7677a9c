// Package observability wires OpenTelemetry tracing and metrics for token
// lifecycle operations.
//
// Telemetry is off unless enabled in configuration. When it is off, spans and
// instruments go to the global no-op providers and cost nothing:
//
//	tel, err := observability.Init(ctx, cfg.Telemetry, version.Short())
//	defer tel.Shutdown(ctx)
//
//	ctx, op := observability.StartOperation(ctx, tel.Metrics, "refresh",
//		observability.ProviderAttrs("Google", "social")...)
//	defer func() { op.End(ctx, err) }()
package observability
