// Package messaging drives the capture workflow from trigger messages and
// decides whether a failed trigger is requeued or dead-lettered.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"dtfcapture/internal/broker"
	"dtfcapture/internal/constants"
	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/notification"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/models"
	"dtfcapture/pkg/retry"
	"dtfcapture/pkg/tracing"
)

const headerCaptureDate = "capture-date"

// Processor runs one capture flow.
type Processor interface {
	Process(ctx context.Context, fc flow.Context) error
}

type Config struct {
	InputTopic                   string
	DLQTopic                     string
	MaxRetryAttempts             int
	RequeueNotificationThreshold int
}

type Consumer struct {
	cfg       Config
	processor Processor
	producer  broker.Producer
	notifier  notification.Notifier
	flags     FlagStore
	retry     *retry.Engine
	logger    logger.Logger
}

func NewConsumer(cfg Config, processor Processor, producer broker.Producer, notifier notification.Notifier, flags FlagStore, engine *retry.Engine, log logger.Logger) *Consumer {
	if flags == nil {
		flags = NewMemoryFlagStore(0, 0)
	}
	return &Consumer{
		cfg:       cfg,
		processor: processor,
		producer:  producer,
		notifier:  notifier,
		flags:     flags,
		retry:     engine,
		logger:    log,
	}
}

// Handle processes one trigger. It returns nil when the message may be
// acknowledged: the flow succeeded, or it failed and was requeued or
// dead-lettered. An error means the message must stay unacknowledged.
func (c *Consumer) Handle(ctx context.Context, msg broker.Message) error {
	fc := c.resolveFlow(ctx, msg)
	ctx = flow.Attach(ctx, fc)

	ctx, span := tracing.StartSpan(ctx, "messaging.Handle",
		attribute.String("flow.id", fc.ID.String()),
		attribute.String("flow.capture_date", fc.DateString()),
	)
	defer span.End()

	c.logger.InfowCtx(ctx, "Message received", "method", "messaging.Handle",
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)

	err := c.process(ctx, fc)
	if err == nil {
		if clearErr := c.flags.Clear(ctx, fc.ID); clearErr != nil {
			c.logger.WarnwCtx(ctx, "Failed to clear notification flags", "method", "messaging.Handle", "error", clearErr)
		}
		c.logger.InfowCtx(ctx, "Message processed", "method", "messaging.Handle")
		return nil
	}

	tracing.RecordError(span, err)

	// An explicit cancellation leaves the message for the next consumer.
	if errors.Is(ctx.Err(), context.Canceled) {
		return err
	}

	c.logger.ErrorwCtx(ctx, "Failed to process message", "method", "messaging.Handle",
		"detail", "payload="+string(msg.Value), "error", err)

	// The handler deadline may already have passed; the requeue must still go out.
	return c.handleFailure(context.WithoutCancel(ctx), msg, fc, err)
}

func (c *Consumer) process(ctx context.Context, fc flow.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.RecoverPanic(r)
		}
	}()
	return c.processor.Process(ctx, fc)
}

func (c *Consumer) handleFailure(ctx context.Context, msg broker.Message, fc flow.Context, cause error) error {
	next := RetryCount(msg) + 1

	c.notifyOnce(ctx, fc, FlagFailure, func() error {
		return c.notifier.Error(ctx, notification.ExecutionFailed(fc, cause), cause)
	})
	if next == 1 {
		c.notifyOnce(ctx, fc, FlagPartialRetry, func() error {
			return c.notifier.Warn(ctx, notification.PartialRetry(fc, next))
		})
	}
	if next >= c.cfg.RequeueNotificationThreshold {
		c.notifyOnce(ctx, fc, FlagRequeueThreshold, func() error {
			return c.notifier.Error(ctx, notification.RequeueThreshold(fc, next, c.cfg.RequeueNotificationThreshold), nil)
		})
	}

	if next > c.cfg.MaxRetryAttempts {
		c.notifyOnce(ctx, fc, FlagRetryLimit, func() error {
			return c.notifier.Error(ctx, notification.RetryLimitExceeded(fc, next, c.cfg.MaxRetryAttempts), nil)
		})
		return c.deadLetter(ctx, msg, fc, next)
	}
	return c.requeue(ctx, msg, fc, next)
}

func (c *Consumer) requeue(ctx context.Context, msg broker.Message, fc flow.Context, retryCount int) error {
	if err := c.publish(ctx, c.cfg.InputTopic, retryMessage(msg, fc, retryCount)); err != nil {
		return fmt.Errorf("failed to requeue message: %w", err)
	}
	metrics.IncRequeue(c.cfg.InputTopic)
	c.logger.WarnwCtx(ctx, "Message requeued", "method", "messaging.requeue",
		"retry_count", retryCount, "max_retry_attempts", c.cfg.MaxRetryAttempts)
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg broker.Message, fc flow.Context, retryCount int) error {
	if c.cfg.DLQTopic == "" {
		c.logger.ErrorwCtx(ctx, "Retry limit exceeded and no dead-letter topic configured, dropping message",
			"method", "messaging.deadLetter", "retry_count", retryCount)
		metrics.IncDLQ("", "retry_limit_dropped")
		return nil
	}
	if err := c.publish(ctx, c.cfg.DLQTopic, retryMessage(msg, fc, retryCount)); err != nil {
		return fmt.Errorf("failed to dead-letter message: %w", err)
	}
	metrics.IncDLQ(c.cfg.DLQTopic, "retry_limit")
	c.logger.ErrorwCtx(ctx, "Message sent to dead-letter topic", "method", "messaging.deadLetter",
		"retry_count", retryCount, "topic", c.cfg.DLQTopic)
	return nil
}

func (c *Consumer) publish(ctx context.Context, topic string, msg broker.Message) error {
	return c.retry.Do(ctx, retry.KindBrokerConnect, "messaging.publish", func(ctx context.Context) error {
		return c.producer.Publish(ctx, topic, msg)
	})
}

func (c *Consumer) notifyOnce(ctx context.Context, fc flow.Context, flag Flag, send func() error) {
	first, err := c.flags.MarkOnce(ctx, fc.ID, flag)
	if err != nil {
		c.logger.WarnwCtx(ctx, "Notification flag unavailable, notifying anyway",
			"method", "messaging.notifyOnce", "flag", string(flag), "error", err)
		first = true
	}
	if !first {
		return
	}
	if err := send(); err != nil {
		c.logger.ErrorwCtx(ctx, "Failed to notify", "method", "messaging.notifyOnce",
			"flag", string(flag), "error", err)
	}
}

// resolveFlow takes the first UUID among the correlation id, message id, key
// and a previously stamped flow id; the capture date comes from the trigger
// body, then from a previously stamped header, then today.
func (c *Consumer) resolveFlow(ctx context.Context, msg broker.Message) flow.Context {
	id := uuid.Nil
	for _, raw := range []string{
		msg.Header(constants.HeaderCorrelationID),
		msg.Header(constants.HeaderMessageID),
		string(msg.Key),
		msg.Header(constants.HeaderFlowID),
	} {
		if parsed, err := uuid.Parse(strings.TrimSpace(raw)); err == nil && parsed != uuid.Nil {
			id = parsed
			break
		}
	}
	if id == uuid.Nil {
		id = flow.IDFromCorrelation("")
	}

	date := flow.Today()
	if stamped, err := flow.ParseDate(msg.Header(headerCaptureDate)); err == nil {
		date = stamped
	}
	trigger, err := models.ParseTrigger(msg.Value)
	if err != nil {
		c.logger.WarnwCtx(ctx, "Ignoring malformed trigger body", "method", "messaging.resolveFlow", "error", err)
	} else {
		date = trigger.CaptureDateOr(date)
	}

	return flow.New(id, date)
}

// RetryCount reads x-retry-count, falling back to x-delivery-count - 1.
func RetryCount(msg broker.Message) int {
	if n, ok := headerInt(msg, constants.HeaderRetryCount); ok {
		return max(0, n)
	}
	if n, ok := headerInt(msg, constants.HeaderDeliveryCount); ok {
		return max(0, n-1)
	}
	return 0
}

func headerInt(msg broker.Message, name string) (int, bool) {
	raw := strings.TrimSpace(msg.Header(name))
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func retryMessage(msg broker.Message, fc flow.Context, retryCount int) broker.Message {
	headers := msg.CloneHeaders()
	setHeader(headers, constants.HeaderRetryCount, strconv.Itoa(retryCount))
	setHeader(headers, constants.HeaderFlowID, fc.ID.String())
	setHeader(headers, headerCaptureDate, fc.DateString())
	if msg.Header(constants.HeaderMessageID) == "" {
		headers[constants.HeaderMessageID] = fc.ID.String()
	}
	key := msg.Key
	if len(key) == 0 {
		key = []byte(fc.ID.String())
	}
	return broker.Message{
		Key:     key,
		Value:   msg.Value,
		Headers: headers,
	}
}

// setHeader replaces name regardless of the case it was received with.
func setHeader(headers map[string]string, name, value string) {
	for k := range headers {
		if strings.EqualFold(k, name) {
			delete(headers, k)
		}
	}
	headers[name] = value
}
