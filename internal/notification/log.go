package notification

import (
	"context"

	"dtfcapture/internal/logger"
	"dtfcapture/pkg/metrics"
)

// LogNotifier is used when no notification backend is configured. It only
// records what would have been sent.
type LogNotifier struct {
	logger logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

func (n *LogNotifier) Info(ctx context.Context, payload Payload) error {
	return n.record(ctx, LevelInfo, payload, nil)
}

func (n *LogNotifier) Warn(ctx context.Context, payload Payload) error {
	return n.record(ctx, LevelWarn, payload, nil)
}

func (n *LogNotifier) Error(ctx context.Context, payload Payload, cause error) error {
	return n.record(ctx, LevelError, payload, cause)
}

func (n *LogNotifier) record(ctx context.Context, level string, payload Payload, cause error) error {
	payload = withCorrelation(ctx, payload)
	fields := []interface{}{
		"method", "notification." + level,
		"template", payload.TemplateName,
		"title", payload.Title,
		"detail", payload.Description,
		"correlation_id", payload.CorrelationID,
	}
	if cause != nil {
		fields = append(fields, "error", cause)
	}
	n.logger.WarnwCtx(ctx, "Notification service not configured", fields...)
	metrics.IncNotification(level, "logged")
	return nil
}
