package nav

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

// ErrorSink receives every failure the user should be told about.
type ErrorSink interface {
	Report(ctx context.Context, err error)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(ctx context.Context, err error)

func (f SinkFunc) Report(ctx context.Context, err error) {
	f(ctx, err)
}

// LogSink writes reported failures to a logger.
type LogSink struct {
	Logger zerolog.Logger
}

func NewLogSink() LogSink {
	return LogSink{Logger: log.L().With().Str(log.FieldComponent, "nav").Logger()}
}

func (s LogSink) Report(_ context.Context, err error) {
	s.Logger.Warn().Err(err).Msg(err.Error())
}
