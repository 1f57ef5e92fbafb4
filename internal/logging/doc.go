// Package logging builds the zap loggers used across modelrouter.
//
// NewLogger returns a plain *zap.Logger: components accept *zap.Logger and
// default to zap.NewNop(). The core it builds
//
//   - writes JSON or console output to stdout,
//   - optionally mirrors every record to an OTEL LoggerProvider,
//   - samples repeated debug and info messages while never dropping warnings
//     and errors,
//   - redacts sensitive field values such as API keys and bearer tokens.
//
// Correlation data travels in the context. Routers and handlers attach the
// router name, decision ID and request ID with WithRouter, WithDecisionID
// and WithRequestID, and log with ContextFields(ctx):
//
//	ctx = logging.WithDecisionID(logging.WithRouter(ctx, "thompson"), id)
//	logger.Info("reward applied", append(logging.ContextFields(ctx),
//		zap.String("arm", arm))...)
//
// Tests capture output with NewTestLogger.
package logging
