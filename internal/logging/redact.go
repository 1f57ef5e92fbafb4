package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// redactingEncoder masks sensitive values before they reach the wrapped
// encoder. Fields attached with logger.With arrive through the Add*
// methods; per-entry fields and the message are rewritten in EncodeEntry.
type redactingEncoder struct {
	zapcore.Encoder
	keys     []string
	patterns []*regexp.Regexp
}

func newRedactingEncoder(base zapcore.Encoder, cfg RedactConfig) (*redactingEncoder, error) {
	keys := make([]string, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		keys = append(keys, strings.ToLower(f))
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	return &redactingEncoder{Encoder: base, keys: keys, patterns: patterns}, nil
}

func (e *redactingEncoder) sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range e.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (e *redactingEncoder) mask(s string) string {
	for _, re := range e.patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}

// redactField returns f with its value masked when needed.
func (e *redactingEncoder) redactField(f zapcore.Field) zapcore.Field {
	if e.sensitiveKey(f.Key) {
		return zap.String(f.Key, redacted)
	}
	if f.Type == zapcore.StringType {
		if masked := e.mask(f.String); masked != f.String {
			return zap.String(f.Key, masked)
		}
	}
	return f
}

// EncodeEntry redacts the message and every field of one record.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.mask(ent.Message)
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		out[i] = e.redactField(f)
	}
	return e.Encoder.EncodeEntry(ent, out)
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddString(key, e.mask(val))
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddByteString(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitiveKey(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{
		Encoder:  e.Encoder.Clone(),
		keys:     e.keys,
		patterns: e.patterns,
	}
}
