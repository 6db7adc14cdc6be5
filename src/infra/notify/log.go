package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/sandai/arena/src/domain/notification"
)

// LogSink writes every event to the logger.
type LogSink struct {
	Logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) Notify(_ context.Context, e *notification.Event) {
	if e == nil {
		return
	}
	fields := []zap.Field{
		zap.String("type", string(e.Type)),
		zap.Int("recipients", len(e.Recipients)),
	}
	if e.MatchID != "" {
		fields = append(fields, zap.String("match_id", string(e.MatchID)))
	}
	if e.TournamentID != "" {
		fields = append(fields, zap.String("tournament_id", string(e.TournamentID)))
	}
	if len(e.Data) > 0 {
		fields = append(fields, zap.Any("data", e.Data))
	}
	s.Logger.Info("notification", fields...)
}
