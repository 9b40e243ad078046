package observability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapHooks binds Hooks to a zap logger. Request/response events are logged
// at debug, truncation at warn.
func NewZapHooks(logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{
		Logf: func(_ context.Context, level string, msg string, fields map[string]any) {
			lvl, err := zapcore.ParseLevel(level)
			if err != nil {
				lvl = zapcore.InfoLevel
			}
			if ce := logger.Check(lvl, msg); ce != nil {
				ce.Write(zapFields(fields)...)
			}
		},
		OnLLMRequest: func(_ context.Context, provider, model string, meta map[string]any) {
			logger.Debug("llm request", append(zapFields(meta), zap.String("provider", provider), zap.String("model", model))...)
		},
		OnLLMResponse: func(_ context.Context, provider, model string, latency time.Duration, meta map[string]any) {
			logger.Debug("llm response", append(zapFields(meta), zap.String("provider", provider), zap.String("model", model), zap.Duration("latency", latency))...)
		},
		OnTruncated: func(_ context.Context, text string) {
			logger.Warn("response was truncated by the model", zap.Int("length", len(text)))
		},
		OnTrace: func(_ context.Context, event string, data map[string]any) {
			logger.Debug(event, zapFields(data)...)
		},
	}
}

// NewLogger builds a production zap logger at the given level ("debug",
// "info", ...). Console encoding is used when dev is set.
func NewLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}

func zapFields(m map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(m)+3)
	for k, v := range m {
		out = append(out, zap.Any(k, v))
	}
	return out
}
