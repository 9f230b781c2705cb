package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	FlowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_flows_total",
			Help: "Total number of capture flows by outcome (count)",
		},
		[]string{"mode", "status"},
	)

	FlowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "capture_flow_duration_ms",
			Help:    "Duration of a capture flow in milliseconds",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"mode", "status"},
	)

	ObservationsFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_observations_fetched_total",
			Help: "Total number of observations read from the data source (count)",
		},
	)

	PricesPersistedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "capture_prices_persisted_total",
			Help: "Total number of price payloads handed to the price store (count)",
		},
	)

	PersistChunkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "capture_persist_chunk_duration_ms",
			Help:    "Duration of one persistence chunk in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
	)

	DownstreamSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_downstream_sends_total",
			Help: "Total number of downstream sends by outcome (count)",
		},
		[]string{"status"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_notifications_total",
			Help: "Total number of notifications by level and outcome (count)",
		},
		[]string{"level", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts by operation kind (count)",
		},
		[]string{"kind"},
	)

	RequeueMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requeue_messages_total",
			Help: "Total number of messages republished for another attempt (count)",
		},
		[]string{"topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"topic"},
	)
)

func RegisterCaptureMetrics() {
	prometheus.MustRegister(FlowsTotal)
	prometheus.MustRegister(FlowDuration)
	prometheus.MustRegister(ObservationsFetchedTotal)
	prometheus.MustRegister(PricesPersistedTotal)
	prometheus.MustRegister(PersistChunkDuration)
	prometheus.MustRegister(DownstreamSendsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RequeueMessagesTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
	prometheus.MustRegister(KafkaWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveFlow(mode, status string, duration time.Duration) {
	FlowsTotal.WithLabelValues(mode, status).Inc()
	FlowDuration.WithLabelValues(mode, status).Observe(float64(duration.Milliseconds()))
}

func AddObservationsFetched(n int) {
	ObservationsFetchedTotal.Add(float64(n))
}

func ObservePersistChunk(size int, duration time.Duration) {
	PricesPersistedTotal.Add(float64(size))
	PersistChunkDuration.Observe(float64(duration.Milliseconds()))
}

func IncDownstreamSend(status string) {
	DownstreamSendsTotal.WithLabelValues(status).Inc()
}

func IncNotification(level, status string) {
	NotificationsTotal.WithLabelValues(level, status).Inc()
}

func IncRetryAttempt(kind string) {
	RetryAttemptsTotal.WithLabelValues(kind).Inc()
}

func IncRequeue(topic string) {
	RequeueMessagesTotal.WithLabelValues(topic).Inc()
}

func IncDLQ(topic, reason string) {
	DLQMessagesTotal.WithLabelValues(topic, reason).Inc()
}

func IncKafkaMessagesRead(topic string) {
	KafkaMessagesReadTotal.WithLabelValues(topic).Inc()
}

func IncKafkaMessagesWritten(topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(topic).Inc()
}

func ObserveKafkaWriteDuration(topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(topic).Observe(float64(duration.Milliseconds()))
}
