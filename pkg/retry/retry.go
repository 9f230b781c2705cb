package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"dtfcapture/internal/logger"
	"dtfcapture/pkg/metrics"
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) IsRetryable() bool {
	return true
}

func (e *retryableError) Unwrap() error {
	return e.err
}

func NewRetryableError(err error) RetryableError {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

type FatalError interface {
	error
	IsFatal() bool
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string {
	return e.err.Error()
}

func (e *fatalError) IsFatal() bool {
	return true
}

func (e *fatalError) Unwrap() error {
	return e.err
}

func NewFatalError(err error) FatalError {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// Engine executes outbound operations under the fixed policy of their Kind.
type Engine struct {
	policies map[Kind]Policy
	logger   logger.Logger
}

type Option func(*Engine)

// WithPolicy replaces the policy used for kind.
func WithPolicy(kind Kind, policy Policy) Option {
	return func(e *Engine) {
		e.policies[kind] = policy
	}
}

func NewEngine(log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		policies: DefaultPolicies(),
		logger:   log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Policy(kind Kind) Policy {
	if p, ok := e.policies[kind]; ok {
		return p
	}
	return Policy{MaxAttempts: 1}
}

// Do runs fn under the policy of kind.
func (e *Engine) Do(ctx context.Context, kind Kind, method string, fn func(ctx context.Context) error) error {
	_, err := Execute(ctx, e, kind, method, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Execute runs fn until it succeeds, returns an error that is not transient for
// kind, the policy is exhausted or ctx is done. The last error is returned as is.
func Execute[T any](ctx context.Context, e *Engine, kind Kind, method string, fn func(ctx context.Context) (T, error)) (T, error) {
	policy := e.Policy(kind)
	attempt := 0

	operation := func() (T, error) {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, backoff.Permanent(err)
		}

		attempt++
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if ctx.Err() != nil || !IsTransient(kind, err) {
			return result, backoff.Permanent(err)
		}
		return result, err
	}

	notify := func(err error, delay time.Duration) {
		metrics.IncRetryAttempt(string(kind))
		e.logger.WarnwCtx(ctx, "Retry scheduled",
			"method", method,
			"kind", string(kind),
			"attempt", attempt,
			"max_attempts", policy.MaxAttempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
	}

	b := backoff.WithContext(newScheduleBackOff(policy.Delays), ctx)
	return backoff.RetryNotifyWithData(operation, b, notify)
}
