package sinkutils

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
)

// LoggingSink wraps another sink and logs every emitted message.
// If the wrapped sink is nil, it acts as a standalone logging sink.
type LoggingSink struct {
	wrapped  wssrecv.Sink
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string // Optional name for identification in logs
}

// NewLoggingSink creates a new LoggingSink that wraps another sink.
func NewLoggingSink(wrapped wssrecv.Sink, logger *zap.Logger, logLevel zapcore.Level) *LoggingSink {
	return NewNamedLoggingSink(wrapped, logger, logLevel, "LoggingSink")
}

// NewNamedLoggingSink creates a new LoggingSink with a custom name.
func NewNamedLoggingSink(wrapped wssrecv.Sink, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingSink{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

// Emit logs the message and forwards it to the wrapped sink if present.
func (l *LoggingSink) Emit(ctx context.Context, msg wssrecv.Message) error {
	l.logger.Log(l.logLevel, "Emit called",
		zap.String("sink", l.name),
		zap.String("type", msg.Type.String()),
		zap.Int("size", msg.Len()),
		zap.ByteString("message", msg.Data),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		return l.wrapped.Emit(ctx, msg)
	}

	return nil
}
