// Package telemetry sets up OTLP export of traces and metrics.
//
// New installs the tracer and meter providers as the OTEL globals, so
// packages that instrument themselves with otel.Meter and otel.Tracer are
// picked up without extra wiring. A disabled config yields an instance
// whose Tracer and Meter fall back to the globals. Exporter failures leave
// the process running and are reported by Degraded.
//
//	tel, err := telemetry.New(ctx, telemetry.FromObservability(cfg.Observability, version))
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry
