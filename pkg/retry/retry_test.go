package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dtfcapture/internal/logger"
)

func fastPolicy(t *testing.T, attempts int) Policy {
	t.Helper()
	delays := make([]time.Duration, attempts-1)
	for i := range delays {
		delays[i] = time.Millisecond
	}
	p, err := NewPolicy(attempts, delays...)
	require.NoError(t, err)
	return p
}

func TestNewPolicy_Validation(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		delays   []time.Duration
		wantErr  bool
	}{
		{"single attempt", 1, nil, false},
		{"three attempts", 3, []time.Duration{time.Millisecond, time.Second}, false},
		{"zero attempts", 0, nil, true},
		{"too few delays", 3, []time.Duration{time.Second}, true},
		{"too many delays", 2, []time.Duration{time.Second, time.Second}, true},
		{"negative delay", 2, []time.Duration{-time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(tt.attempts, tt.delays...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPolicies(t *testing.T) {
	policies := DefaultPolicies()
	for _, kind := range Kinds() {
		p, ok := policies[kind]
		require.True(t, ok, kind)
		assert.Len(t, p.Delays, p.MaxAttempts-1, kind)
	}
	assert.Equal(t, 5, policies[KindBrokerConnect].MaxAttempts)
	assert.Equal(t, 4*time.Second, policies[KindBrokerConnect].Delays[3])
	assert.Equal(t, 200*time.Millisecond, policies[KindPersistenceConnect].Delays[0])
}

func TestExecute_RetriesTransientUntilSuccess(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEngine(logger.NewFromCore(core, "test"), WithPolicy(KindPersistenceConnect, fastPolicy(t, 3)))

	calls := 0
	got, err := Execute(context.Background(), e, KindPersistenceConnect, "test.op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", driver.ErrBadConn
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", got)
	assert.Equal(t, 3, calls)

	entries := logs.FilterMessage("Retry scheduled").All()
	require.Len(t, entries, 2)
	fields := entries[1].ContextMap()
	assert.Equal(t, "test.op", fields["method"])
	assert.Equal(t, "persistence-connect", fields["kind"])
	assert.EqualValues(t, 2, fields["attempt"])
}

func TestExecute_ExhaustionReturnsLastError(t *testing.T) {
	e := NewEngine(logger.NopLogger(), WithPolicy(KindBrokerConnect, fastPolicy(t, 5)))

	calls := 0
	err := e.Do(context.Background(), KindBrokerConnect, "test.publish", func(context.Context) error {
		calls++
		return kafka.LeaderNotAvailable
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, kafka.LeaderNotAvailable)
	assert.Equal(t, 5, calls)
}

func TestExecute_NonTransientPropagatesImmediately(t *testing.T) {
	e := NewEngine(logger.NopLogger(), WithPolicy(KindSourceFetch, fastPolicy(t, 3)))
	boom := errors.New("parse failure")

	calls := 0
	err := e.Do(context.Background(), KindSourceFetch, "test.fetch", func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestExecute_FatalMarkerWins(t *testing.T) {
	e := NewEngine(logger.NopLogger(), WithPolicy(KindPersistenceConnect, fastPolicy(t, 3)))

	calls := 0
	err := e.Do(context.Background(), KindPersistenceConnect, "test.op", func(context.Context) error {
		calls++
		return NewFatalError(driver.ErrBadConn)
	})

	assert.ErrorIs(t, err, driver.ErrBadConn)
	assert.Equal(t, 1, calls)
}

func TestExecute_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := NewEngine(logger.NopLogger()).Do(ctx, KindSourceFetch, "test", func(context.Context) error {
		calls++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestExecute_CancelledBetweenAttempts(t *testing.T) {
	policy, err := NewPolicy(3, time.Hour, time.Hour)
	require.NoError(t, err)
	e := NewEngine(logger.NopLogger(), WithPolicy(KindDownstreamSend, policy))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	calls := 0
	start := time.Now()
	err = e.Do(ctx, KindDownstreamSend, "test", func(context.Context) error {
		calls++
		return &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Minute)
}

func TestIsTransient(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

	tests := []struct {
		name string
		kind Kind
		err  error
		want bool
	}{
		{"nil", KindSourceFetch, nil, false},
		{"cancelled", KindSourceFetch, context.Canceled, false},
		{"http deadline", KindSourceFetch, context.DeadlineExceeded, true},
		{"http socket", KindDownstreamSend, opErr, true},
		{"http plain", KindNotificationSend, errors.New("bad json"), false},
		{"retryable marker", KindNotificationSend, NewRetryableError(errors.New("x")), true},
		{"fatal marker", KindSourceFetch, NewFatalError(opErr), false},
		{"pq error", KindPersistenceConnect, &pq.Error{Code: "57P01"}, true},
		{"bad conn", KindPersistenceConnect, driver.ErrBadConn, true},
		{"persistence reset", KindPersistenceConnect, syscall.ECONNRESET, true},
		{"persistence plain", KindPersistenceConnect, errors.New("scan failed"), false},
		{"broker leader", KindBrokerConnect, kafka.LeaderNotAvailable, true},
		{"broker socket", KindBrokerConnect, opErr, true},
		{"broker too large", KindBrokerConnect, kafka.MessageSizeTooLarge, false},
		{"broker write errors", KindBrokerConnect, kafka.WriteErrors{kafka.NotLeaderForPartition}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.kind, tt.err))
		})
	}
}

func TestIsTransientStatus(t *testing.T) {
	for _, s := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientStatus(s), s)
	}
	for _, s := range []int{400, 401, 403, 404, 409, 501} {
		assert.False(t, IsTransientStatus(s), s)
	}
}
