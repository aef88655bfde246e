package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log *zap.Logger

// InitLogger installs the process-wide JSON logger. level is a zap level
// name; an empty or unknown level means info.
func InitLogger(serviceName, level string) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		lvl = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = lvl
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// every delivery outcome is logged, bursts included
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	Log = logger.With(zap.String("service", serviceName))
}

// GetLogger returns the global logger with trace_id and span_id attached
// when ctx carries a recording span.
func GetLogger(ctx context.Context) *zap.Logger {
	if Log == nil {
		InitLogger("unknown", "")
	}

	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return Log
	}
	return Log.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}
