// Package downstream posts the captured prices to the pricing system.
package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/prices"
	"dtfcapture/pkg/circuitbreaker"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/retry"
	"dtfcapture/pkg/tracing"
)

const (
	DefaultTokenEnvVar = "BANREP_BEARER_TOKEN"
	DefaultTimeout     = 30 * time.Second

	IdempotencyKeyHeader = "Idempotency-Key"
	FlowIDHeader         = "X-Flow-Id"
)

// sendIDHeaders are checked in order for the id the receiver assigned to the send.
var sendIDHeaders = []string{
	"X-Downstream-Send-Id",
	"X-Send-Id",
	"X-Request-Id",
	"X-Correlation-Id",
}

// sendIDNamespace derives a stable send id from the flow id when the receiver
// does not return one.
var sendIDNamespace = uuid.MustParse("0b9b7a8e-51d4-4b55-9a0c-4c2f4f1f6e10")

type Config struct {
	URL         string
	Timeout     time.Duration
	TokenEnvVar string
}

type Sender interface {
	Send(ctx context.Context, fc flow.Context, payloads []prices.Payload) (uuid.UUID, error)
}

type HTTPSender struct {
	http        *http.Client
	url         string
	tokenEnvVar string
	retry       *retry.Engine
	breaker     *circuitbreaker.Breaker
	logger      logger.Logger
}

func NewHTTPSender(cfg Config, engine *retry.Engine, breaker *circuitbreaker.Breaker, log logger.Logger) *HTTPSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tokenEnvVar := cfg.TokenEnvVar
	if tokenEnvVar == "" {
		tokenEnvVar = DefaultTokenEnvVar
	}
	return &HTTPSender{
		http:        &http.Client{Timeout: timeout, Transport: tracing.HTTPTransport(http.DefaultTransport)},
		url:         cfg.URL,
		tokenEnvVar: tokenEnvVar,
		retry:       engine,
		breaker:     breaker,
		logger:      log,
	}
}

// Send posts the payload array. The flow id travels as the idempotency key, so
// a resend after a crash is recognisable as the same delivery by the receiver.
func (s *HTTPSender) Send(ctx context.Context, fc flow.Context, payloads []prices.Payload) (uuid.UUID, error) {
	if payloads == nil {
		payloads = []prices.Payload{}
	}
	body, err := json.Marshal(payloads)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal payloads: %w", err)
	}

	s.logger.InfowCtx(ctx, "Sending daily payload", "method", "downstream.Send", "records", len(payloads))

	sendID, err := retry.Execute(ctx, s.retry, retry.KindDownstreamSend, "downstream.Send", func(ctx context.Context) (uuid.UUID, error) {
		return circuitbreaker.Execute(ctx, s.breaker, func(ctx context.Context) (uuid.UUID, error) {
			return s.post(ctx, fc, body)
		})
	})
	if err != nil {
		metrics.IncDownstreamSend("failed")
		return uuid.Nil, err
	}

	metrics.IncDownstreamSend("sent")
	return sendID, nil
}

func (s *HTTPSender) post(ctx context.Context, fc flow.Context, body []byte) (uuid.UUID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, retry.NewFatalError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyKeyHeader, fc.ID.String())
	req.Header.Set(FlowIDHeader, fc.ID.String())
	if token := strings.TrimSpace(os.Getenv(s.tokenEnvVar)); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("downstream request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		details := map[string]interface{}{"status": resp.StatusCode}
		if retry.IsTransientStatus(resp.StatusCode) {
			return uuid.Nil, pkgerrors.ErrDownstreamRejected.AsRetryable().WithDetails(details)
		}
		return uuid.Nil, pkgerrors.ErrDownstreamRejected.AsFatal().WithDetails(details)
	}

	return ResolveSendID(resp.Header, fc.ID), nil
}

// ResolveSendID returns the first UUID found in the known response headers,
// falling back to an id derived from the flow id.
func ResolveSendID(h http.Header, flowID uuid.UUID) uuid.UUID {
	for _, name := range sendIDHeaders {
		raw := strings.TrimSpace(h.Get(name))
		if raw == "" {
			continue
		}
		if id, err := uuid.Parse(raw); err == nil && id != uuid.Nil {
			return id
		}
	}
	return uuid.NewSHA1(sendIDNamespace, flowID[:])
}
