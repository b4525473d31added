package observability

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hanko-field/quickorder/internal/services"
)

// Diagnostics writes pipeline events to zap and feeds the event counters.
type Diagnostics struct {
	logger  *zap.Logger
	metrics *Metrics
}

// NewDiagnostics returns a services.Diagnostics sink. Both arguments are optional.
func NewDiagnostics(logger *zap.Logger, metrics *Metrics) *Diagnostics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Diagnostics{logger: logger, metrics: metrics}
}

var _ services.Diagnostics = (*Diagnostics)(nil)

// Log implements services.Diagnostics.
func (d *Diagnostics) Log(ctx context.Context, level services.DiagnosticLevel, event string, fields map[string]any) {
	d.metrics.RecordEvent(event, string(level))

	logger := FromContext(ctx, d.logger)
	zl := zapLevel(level)
	if ce := logger.Check(zl, event); ce != nil {
		ce.Write(diagnosticFields(event, fields)...)
	}
}

func zapLevel(level services.DiagnosticLevel) zapcore.Level {
	switch level {
	case services.LevelDebug:
		return zapcore.DebugLevel
	case services.LevelWarn:
		return zapcore.WarnLevel
	case services.LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func diagnosticFields(event string, fields map[string]any) []zap.Field {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	out = append(out, zap.String("event", event))
	for _, key := range keys {
		value := fields[key]
		if err, ok := value.(error); ok {
			out = append(out, zap.NamedError(key, err))
			continue
		}
		out = append(out, zap.Any(key, RedactPII(key, value)))
	}
	return out
}
