package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"dtfcapture/internal/config"
	"dtfcapture/internal/constants"
	"dtfcapture/internal/logger"
	"dtfcapture/pkg/logging"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/tracing"
)

type KafkaProducer struct {
	writer *kafka.Writer
	logger logger.Logger
}

func NewKafkaProducer(cfg config.KafkaConfig, log logger.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: constants.KafkaBatchTimeout,
		WriteTimeout: constants.KafkaWriteTimeout,
		RequiredAcks: kafka.RequireAll,
		// Retries are owned by the caller's retry policy.
		MaxAttempts: 1,
		Async:       false,
	}
	if mechanism := saslMechanism(cfg); mechanism != nil {
		w.Transport = &kafka.Transport{SASL: mechanism}
	}
	return &KafkaProducer{writer: w, logger: log}
}

// Publish writes msg synchronously and returns once all in-sync replicas
// acknowledged it.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, msg Message) error {
	headers := msg.CloneHeaders()
	tracing.InjectHeaders(ctx, headers)

	start := time.Now()
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: toKafkaHeaders(headers),
		Time:    time.Now(),
	})
	metrics.ObserveKafkaWriteDuration(topic, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}

	metrics.IncKafkaMessagesWritten(topic)
	return nil
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}

type KafkaConsumer struct {
	cfg         config.KafkaConfig
	reader      *kafka.Reader
	logger      logger.Logger
	serviceName string
	mu          sync.Mutex
}

func NewKafkaConsumer(cfg config.KafkaConfig, log logger.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		cfg:         cfg,
		logger:      log,
		serviceName: "unknown",
	}
}

func (c *KafkaConsumer) SetServiceName(name string) {
	c.serviceName = name
}

// Consume blocks until ctx is done or handler fails. Messages are handled one
// at a time and committed only after handler returns nil. A handler error is
// returned without committing, so the message is delivered again once the
// group rebalances or the process restarts.
func (c *KafkaConsumer) Consume(ctx context.Context, handler HandlerFunc) error {
	topic := c.cfg.InputTopic
	c.logger.Infow("Creating Kafka reader",
		"topic", topic,
		"brokers", c.cfg.Brokers,
		"group_id", c.cfg.GroupID,
		"service_name", c.serviceName,
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.cfg.Brokers,
		GroupID:        c.cfg.GroupID,
		Topic:          topic,
		MinBytes:       orDefault(c.cfg.MinBytes, 1),
		MaxBytes:       orDefault(c.cfg.MaxBytes, 10e6),
		MaxWait:        c.cfg.MaxWait,
		QueueCapacity:  1,
		CommitInterval: 0,
		StartOffset:    kafka.FirstOffset,
		Dialer:         dialer(c.cfg),
	})
	c.mu.Lock()
	c.reader = reader
	c.mu.Unlock()

	consumeCtx := logging.WithServiceName(ctx, c.serviceName)
	c.logger.InfowCtx(consumeCtx, "Started consuming", "topic", topic)

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.InfowCtx(consumeCtx, "Stopped consuming",
					"topic", topic,
					"reason", "context canceled",
				)
				return nil
			}
			c.logger.ErrorwCtx(consumeCtx, "Error fetching kafka message",
				"error", err,
				"topic", topic,
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		metrics.IncKafkaMessagesRead(topic)
		msg := fromKafkaMessage(m)

		msgCtx, span := tracing.StartConsumeSpan(consumeCtx, "kafka.consume", msg.Headers)
		msgCtx = logging.WithMessageID(msgCtx, fmt.Sprintf("%s/%d/%d", m.Topic, m.Partition, m.Offset))
		if traceID := span.SpanContext().TraceID(); traceID.IsValid() {
			msgCtx = logging.WithTraceID(msgCtx, traceID.String())
		}

		err = runHandler(msgCtx, c.cfg.HandlerTimeout, handler, msg)
		tracing.RecordError(span, err)
		span.End()

		if err != nil {
			c.logger.ErrorwCtx(msgCtx, "Message left unacknowledged, stopping consumer",
				"error", err,
				"topic", topic,
				"partition", m.Partition,
				"offset", m.Offset,
			)
			return fmt.Errorf("handler failed for %s/%d/%d: %w", m.Topic, m.Partition, m.Offset, err)
		}

		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.KafkaWriteTimeout)
		err = reader.CommitMessages(commitCtx, m)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to commit kafka message: %w", err)
		}
	}
}

// runHandler detaches the handler from ctx so shutdown lets the in-flight
// message finish. The handler is bounded by timeout instead.
func runHandler(ctx context.Context, timeout time.Duration, handler HandlerFunc, msg Message) error {
	if timeout <= 0 {
		timeout = constants.DefaultHandlerTimeout
	}
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return handler(handlerCtx, msg)
}

func (c *KafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader != nil {
		return c.reader.Close()
	}
	return nil
}

func fromKafkaMessage(m kafka.Message) Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     m.Topic,
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
		Partition: m.Partition,
		Offset:    m.Offset,
	}
}

func toKafkaHeaders(headers map[string]string) []kafka.Header {
	out := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func saslMechanism(cfg config.KafkaConfig) *plain.Mechanism {
	if cfg.Username == "" {
		return nil
	}
	return &plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
}

// dialer returns nil for unauthenticated clusters so the reader keeps its default.
func dialer(cfg config.KafkaConfig) *kafka.Dialer {
	mechanism := saslMechanism(cfg)
	if mechanism == nil {
		return nil
	}
	return &kafka.Dialer{
		Timeout:       constants.KafkaWriteTimeout,
		DualStack:     true,
		SASLMechanism: mechanism,
	}
}
