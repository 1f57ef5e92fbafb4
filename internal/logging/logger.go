package logging

import (
	"fmt"
	"os"
	"sort"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const otelScope = "github.com/fyrsmithlabs/modelrouter"

// NewLogger builds a logger from cfg. otelProvider may be nil, in which
// case OTEL output is skipped even when cfg.OTEL is set.
func NewLogger(cfg *Config, otelProvider log.LoggerProvider) (*zap.Logger, error) {
	return newLogger(cfg, zapcore.Lock(os.Stdout), otelProvider)
}

func newLogger(cfg *Config, out zapcore.WriteSyncer, otelProvider log.LoggerProvider) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	core, err := newCore(cfg, out, otelProvider)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if cfg.Caller {
		opts = append(opts, zap.AddCaller())
	}
	opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger := zap.New(core, opts...)
	if len(cfg.Fields) > 0 {
		keys := make([]string, 0, len(cfg.Fields))
		for k := range cfg.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]zap.Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, zap.String(k, cfg.Fields[k]))
		}
		logger = logger.With(fields...)
	}
	return logger, nil
}

// newCore tees the stdout and OTEL cores. Only the stdout core is sampled
// and redacted; the OTEL bridge forwards what it is given.
func newCore(cfg *Config, out zapcore.WriteSyncer, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 3)

	if cfg.Stdout {
		enc, err := newEncoder(cfg)
		if err != nil {
			return nil, err
		}
		cores = append(cores, stdoutCores(cfg, enc, out)...)
	}

	if cfg.OTEL && otelProvider != nil {
		var otelCore zapcore.Core = otelzap.NewCore(otelScope, otelzap.WithLoggerProvider(otelProvider))
		if leveled, err := zapcore.NewIncreaseLevelCore(otelCore, cfg.Level); err == nil {
			otelCore = leveled
		}
		cores = append(cores, otelCore)
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("no log output available (stdout=%t otel=%t provider=%t)",
			cfg.Stdout, cfg.OTEL, otelProvider != nil)
	}
	return zapcore.NewTee(cores...), nil
}

// stdoutCores splits output at WarnLevel so that only the lower levels go
// through the sampler.
func stdoutCores(cfg *Config, enc zapcore.Encoder, out zapcore.WriteSyncer) []zapcore.Core {
	if !cfg.Sampling.Enabled {
		return []zapcore.Core{zapcore.NewCore(enc, out, cfg.Level)}
	}

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= cfg.Level && l < zapcore.WarnLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= cfg.Level && l >= zapcore.WarnLevel
	})

	sampled := zapcore.NewSamplerWithOptions(
		zapcore.NewCore(enc, out, low),
		cfg.Sampling.Tick,
		cfg.Sampling.Initial,
		cfg.Sampling.Thereafter,
	)
	return []zapcore.Core{sampled, zapcore.NewCore(enc.Clone(), out, high)}
}

func newEncoder(cfg *Config) (zapcore.Encoder, error) {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeDuration = zapcore.StringDurationEncoder
	encCfg.EncodeLevel = encodeLevel

	var enc zapcore.Encoder
	if cfg.Format == "console" {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	if !cfg.Redact.Enabled {
		return enc, nil
	}
	red, err := newRedactingEncoder(enc, cfg.Redact)
	if err != nil {
		return nil, err
	}
	return red, nil
}
