package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/municipal-distances/internal/progress"
)

// LogSink emits structured logs for progress events. Call events are logged at
// debug level; lifecycle and row events at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunUUID().String()),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Service != "" {
			fields = append(fields, zap.String("service", evt.Service))
		}
		if evt.Entity != "" {
			fields = append(fields, zap.String("municipality", evt.Entity))
		}
		if evt.Outcome != "" {
			fields = append(fields, zap.String("outcome", string(evt.Outcome)))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Log(levelFor(evt), "progress event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(evt progress.Event) zapcore.Level {
	switch {
	case evt.Stage == progress.StageRunError:
		return zapcore.ErrorLevel
	case evt.Stage == progress.StageCallDone:
		return zapcore.DebugLevel
	case evt.Outcome == progress.OutcomeUnresolved:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
