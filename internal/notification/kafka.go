package notification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"dtfcapture/internal/broker"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/retry"
)

// KafkaNotifier publishes notifications to a topic consumed by the
// notification service instead of calling it over HTTP.
type KafkaNotifier struct {
	producer broker.Producer
	topic    string
	retry    *retry.Engine
}

func NewKafkaNotifier(producer broker.Producer, topic string, engine *retry.Engine) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		retry:    engine,
	}
}

func (n *KafkaNotifier) Info(ctx context.Context, payload Payload) error {
	return n.publish(ctx, LevelInfo, payload)
}

func (n *KafkaNotifier) Warn(ctx context.Context, payload Payload) error {
	return n.publish(ctx, LevelWarn, payload)
}

func (n *KafkaNotifier) Error(ctx context.Context, payload Payload, _ error) error {
	return n.publish(ctx, LevelError, payload)
}

func (n *KafkaNotifier) publish(ctx context.Context, level string, payload Payload) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}

	payload = withCorrelation(ctx, payload)
	body, err := Encode(payload)
	if err != nil {
		return err
	}

	msg := broker.Message{
		Key:   []byte(payload.CorrelationID),
		Value: body,
		Headers: map[string]string{
			"message-id": uuid.New().String(),
			"level":      level,
			"template":   payload.TemplateName,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		},
	}

	err = n.retry.Do(ctx, retry.KindBrokerConnect, "notification.publish", func(ctx context.Context) error {
		return n.producer.Publish(ctx, n.topic, msg)
	})
	if err != nil {
		metrics.IncNotification(level, "failed")
		return err
	}
	metrics.IncNotification(level, "sent")
	return nil
}
