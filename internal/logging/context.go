package logging

import (
	"context"
	"fmt"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	routerKey ctxKey = iota
	decisionKey
	requestKey
)

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ContextFields returns the correlation fields carried by ctx: the active
// span, the router, the decision ID and the request ID. Absent values are
// omitted.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if v := RouterFromContext(ctx); v != "" {
		fields = append(fields, zap.String("router", v))
	}
	if v := DecisionIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("decision_id", v))
	}
	if v := RequestIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	return fields
}

func validateID(kind, id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%s cannot be empty", kind)
	case len(id) > maxIDLen:
		return fmt.Errorf("%s exceeds %d bytes", kind, maxIDLen)
	case !idPattern.MatchString(id):
		return fmt.Errorf("%s %q must contain only letters, digits, '-' and '_'", kind, id)
	}
	return nil
}

// IsValidID reports whether id is accepted by WithRouter, WithDecisionID
// and WithRequestID.
func IsValidID(id string) bool {
	return validateID("id", id) == nil
}

func withValue(ctx context.Context, key ctxKey, kind, v string) context.Context {
	if err := validateID(kind, v); err != nil {
		panic("logging: " + err.Error())
	}
	return context.WithValue(ctx, key, v)
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithRouter records the router handling the request. It panics on a value
// IsValidID rejects; router names are compile-time constants.
func WithRouter(ctx context.Context, name string) context.Context {
	return withValue(ctx, routerKey, "router", name)
}

// WithDecisionID records a decision ID. Check untrusted input with
// IsValidID first; invalid IDs panic.
func WithDecisionID(ctx context.Context, id string) context.Context {
	return withValue(ctx, decisionKey, "decision id", id)
}

// WithRequestID records a request ID. Invalid IDs panic.
func WithRequestID(ctx context.Context, id string) context.Context {
	return withValue(ctx, requestKey, "request id", id)
}

// RouterFromContext returns the router name, or "" if none was set.
func RouterFromContext(ctx context.Context) string { return stringValue(ctx, routerKey) }

func DecisionIDFromContext(ctx context.Context) string { return stringValue(ctx, decisionKey) }

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, requestKey) }
