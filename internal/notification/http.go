package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"dtfcapture/internal/logger"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/retry"
	"dtfcapture/pkg/tracing"
)

const DefaultTimeout = 10 * time.Second

var ErrNotificationRejected = pkgerrors.NewError("NOTIFICATION_REJECTED", "notification service rejected the message", http.StatusBadGateway)

type HTTPNotifier struct {
	http   *http.Client
	url    string
	retry  *retry.Engine
	logger logger.Logger
}

func NewHTTPNotifier(baseURL string, timeout time.Duration, engine *retry.Engine, log logger.Logger) (*HTTPNotifier, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "notification base URL is not configured")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPNotifier{
		http: &http.Client{
			Timeout:   timeout,
			Transport: tracing.HTTPTransport(http.DefaultTransport),
		},
		url:    strings.TrimRight(baseURL, "/") + "/notificar",
		retry:  engine,
		logger: log,
	}, nil
}

func (n *HTTPNotifier) Info(ctx context.Context, payload Payload) error {
	return n.notify(ctx, LevelInfo, payload)
}

func (n *HTTPNotifier) Warn(ctx context.Context, payload Payload) error {
	return n.notify(ctx, LevelWarn, payload)
}

func (n *HTTPNotifier) Error(ctx context.Context, payload Payload, cause error) error {
	if cause != nil {
		n.logger.ErrorwCtx(ctx, "Failure reported for notification",
			"method", "notification.Error", "template", payload.TemplateName, "error", cause)
	}
	return n.notify(ctx, LevelError, payload)
}

func (n *HTTPNotifier) notify(ctx context.Context, level string, payload Payload) error {
	payload = withCorrelation(ctx, payload)
	body, err := Encode(payload)
	if err != nil {
		return err
	}

	err = n.retry.Do(ctx, retry.KindNotificationSend, "notification."+level, func(ctx context.Context) error {
		return n.post(ctx, body)
	})
	if err != nil {
		metrics.IncNotification(level, "failed")
		n.logger.WarnwCtx(ctx, "Failed to send notification",
			"method", "notification."+level, "template", payload.TemplateName, "error", err)
		return err
	}

	metrics.IncNotification(level, "sent")
	return nil
}

func (n *HTTPNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details := map[string]interface{}{"status": resp.StatusCode}
		if retry.IsTransientStatus(resp.StatusCode) {
			return ErrNotificationRejected.AsRetryable().WithDetails(details)
		}
		return ErrNotificationRejected.AsFatal().WithDetails(details)
	}
	return nil
}
