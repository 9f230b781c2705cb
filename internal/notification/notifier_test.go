package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"dtfcapture/internal/broker"
	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/retry"
)

func testEngine(t *testing.T, kind retry.Kind) *retry.Engine {
	t.Helper()
	policy, err := retry.NewPolicy(3, time.Millisecond, time.Millisecond)
	require.NoError(t, err)
	return retry.NewEngine(logger.NopLogger(), retry.WithPolicy(kind, policy))
}

func decodeCard(t *testing.T, raw []byte) (int, Payload) {
	t.Helper()
	var env struct {
		SendMethod int `json:"sendMethod"`
		TeamsChat  struct {
			CardMessage string `json:"cardMessage"`
		} `json:"teamsChat"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	var p Payload
	require.NoError(t, json.Unmarshal([]byte(env.TeamsChat.CardMessage), &p))
	return env.SendMethod, p
}

func TestEncode_CardMessageShape(t *testing.T) {
	body, err := Encode(Payload{Title: "t", TemplateName: TemplateCritical, CorrelationID: "abc"})
	require.NoError(t, err)

	method, p := decodeCard(t, body)
	assert.Equal(t, 2, method)
	assert.Equal(t, "t", p.Title)
	assert.Equal(t, "abc", p.CorrelationID)
	assert.Contains(t, string(body), `\"CorrelationId\":\"abc\"`)
}

func TestPayloadBuilders(t *testing.T) {
	fc := flow.New(uuid.New(), time.Date(2024, time.August, 16, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		payload  Payload
		template string
	}{
		{"execution failed", ExecutionFailed(fc, errors.New("boom")), TemplateExecutionFailed},
		{"partial retry", PartialRetry(fc, 1), TemplatePartialRetry},
		{"requeue threshold", RequeueThreshold(fc, 3, 3), TemplateRequeueThreshold},
		{"retry limit", RetryLimitExceeded(fc, 6, 5), TemplateRetryLimitExceeded},
		{"critical", Critical(fc, "disk full"), TemplateCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.template, tt.payload.TemplateName)
			assert.Equal(t, FeatureDailyCapture, tt.payload.Feature)
			assert.Equal(t, Source, tt.payload.Source)
			assert.Equal(t, fc.ID.String(), tt.payload.CorrelationID)
			assert.NotEmpty(t, tt.payload.Title)
		})
	}

	api := APIError("corr", "daily series", errors.New("boom"))
	assert.Equal(t, FeatureAPI, api.Feature)
	assert.Equal(t, TemplateAPIError, api.TemplateName)
	assert.Contains(t, api.Description, "boom")
}

func TestHTTPNotifier_PostsToNotifyEndpoint(t *testing.T) {
	fc := flow.New(uuid.New(), time.Now())
	var got atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notificar", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		got.Store(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL+"/", time.Second, testEngine(t, retry.KindNotificationSend), logger.NopLogger())
	require.NoError(t, err)

	ctx := flow.Attach(context.Background(), fc)
	require.NoError(t, n.Warn(ctx, Payload{Title: "hello", TemplateName: TemplatePartialRetry}))

	raw, ok := got.Load().([]byte)
	require.True(t, ok)
	_, p := decodeCard(t, raw)
	assert.Equal(t, "hello", p.Title)
	assert.Equal(t, fc.ID.String(), p.CorrelationID)
}

func TestHTTPNotifier_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, time.Second, testEngine(t, retry.KindNotificationSend), logger.NopLogger())
	require.NoError(t, err)

	require.NoError(t, n.Error(context.Background(), Payload{Title: "x"}, errors.New("cause")))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPNotifier_PermanentStatusNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewHTTPNotifier(srv.URL, time.Second, testEngine(t, retry.KindNotificationSend), logger.NopLogger())
	require.NoError(t, err)

	err = n.Info(context.Background(), Payload{Title: "x"})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, ErrNotificationRejected))
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewHTTPNotifier_RequiresBaseURL(t *testing.T) {
	_, err := NewHTTPNotifier("  ", 0, nil, logger.NopLogger())
	require.Error(t, err)
}

func TestLogNotifier_LogsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(logger.NewFromCore(core, "test"))

	require.NoError(t, n.Error(context.Background(), Payload{TemplateName: TemplateCritical, CorrelationID: "c1"}, errors.New("boom")))

	entries := logs.FilterMessage("Notification service not configured").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, TemplateCritical, fields["template"])
	assert.Equal(t, "c1", fields["correlation_id"])
}

type recordingProducer struct {
	mu       sync.Mutex
	failures int
	messages []broker.Message
	topics   []string
}

func (p *recordingProducer) Publish(_ context.Context, topic string, msg broker.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return retry.NewRetryableError(errors.New("leader not available"))
	}
	p.topics = append(p.topics, topic)
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

func TestKafkaNotifier_PublishesCard(t *testing.T) {
	producer := &recordingProducer{failures: 1}
	n := NewKafkaNotifier(producer, "dtf.notifications", testEngine(t, retry.KindBrokerConnect))
	fc := flow.New(uuid.New(), time.Now())

	require.NoError(t, n.Error(context.Background(), RetryLimitExceeded(fc, 6, 5), errors.New("boom")))

	require.Len(t, producer.messages, 1)
	assert.Equal(t, "dtf.notifications", producer.topics[0])
	msg := producer.messages[0]
	assert.Equal(t, fc.ID.String(), string(msg.Key))
	assert.Equal(t, LevelError, msg.Headers["level"])
	assert.Equal(t, TemplateRetryLimitExceeded, msg.Headers["template"])
	_, p := decodeCard(t, msg.Value)
	assert.Equal(t, TemplateRetryLimitExceeded, p.TemplateName)
}

func TestKafkaNotifier_NoTopicIsNoop(t *testing.T) {
	producer := &recordingProducer{}
	n := NewKafkaNotifier(producer, "", testEngine(t, retry.KindBrokerConnect))
	require.NoError(t, n.Info(context.Background(), Payload{}))
	assert.Empty(t, producer.messages)
}
