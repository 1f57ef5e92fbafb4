package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records everything logged through Underlying, from TraceLevel
// up, for assertions in tests.
type TestLogger struct {
	logger   *zap.Logger
	observed *observer.ObservedLogs
}

// NewTestLogger returns an observing logger.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{logger: zap.New(core), observed: observed}
}

// Underlying is the logger to hand to the code under test.
func (t *TestLogger) Underlying() *zap.Logger { return t.logger }

// Entries returns every record logged so far.
func (t *TestLogger) Entries() []observer.LoggedEntry { return t.observed.All() }

// AssertLogged fails tb unless a record at level has a message containing msg.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msg string) {
	tb.Helper()
	for _, e := range t.observed.All() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("no %s record containing %q in %d records", level, msg, t.observed.Len())
}

// AssertField fails tb unless a record with message msg carries key with
// the given value. Values are compared after zap's own field decoding, so
// a float64 field matches a float64 value.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, value any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessage(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && v == value {
			return
		}
	}
	tb.Errorf("no %q record with %s=%v", msg, key, value)
}
