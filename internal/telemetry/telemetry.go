package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry owns the process's tracer and meter providers. A disabled or
// degraded instance hands out the global (no-op by default) providers, so
// callers never need to check whether export is on.
type Telemetry struct {
	cfg *Config

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp log.LoggerProvider

	mu       sync.Mutex
	degraded []error
}

// New validates cfg and, when enabled, installs OTLP providers as the OTEL
// globals. Exporter construction failures do not fail New; they are
// reported by Degraded.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.degrade(err)
	} else {
		t.tp = tp
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		mp, err := newMeterProvider(ctx, cfg, res)
		if err != nil {
			t.degrade(err)
		} else {
			t.mp = mp
			otel.SetMeterProvider(mp)
		}
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

func (t *Telemetry) degrade(err error) {
	t.mu.Lock()
	t.degraded = append(t.degraded, err)
	t.mu.Unlock()
}

// Degraded returns the provider setup errors, or nil.
func (t *Telemetry) Degraded() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return errors.Join(t.degraded...)
}

// Enabled reports whether at least one exporting provider is installed.
func (t *Telemetry) Enabled() bool {
	return t != nil && (t.tp != nil || t.mp != nil)
}

// Tracer returns a tracer from the owned provider or the global one.
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	if t == nil || t.tp == nil {
		return otel.GetTracerProvider().Tracer(name, opts...)
	}
	return t.tp.Tracer(name, opts...)
}

// Meter returns a meter from the owned provider or the global one.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.mp == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.mp.Meter(name, opts...)
}

// LoggerProvider returns the provider the zap OTEL bridge writes to, or
// nil when log export is not configured.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.lp
}

// Shutdown flushes and stops the owned providers. Without a deadline on
// ctx it waits at most the configured shutdown timeout.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	if t.tp != nil {
		if err := t.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if t.mp != nil {
		if err := t.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
