package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
	// DefaultHandlerTimeout bounds one capture flow when none is configured.
	DefaultHandlerTimeout = 5 * time.Minute
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixNotified = "dtf:notified:"
)

const (
	DefaultInputTopic = "dtf.daily.trigger"
	DefaultDLQTopic   = "dtf.daily.trigger.dlq"
)

const (
	DefaultMongoDBName = "dtfcapture"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

const (
	HeaderRetryCount    = "x-retry-count"
	HeaderDeliveryCount = "x-delivery-count"
	HeaderCorrelationID = "correlation-id"
	HeaderMessageID     = "message-id"
	HeaderFlowID        = "flow-id"
)

const (
	SweepInterval = 15 * time.Minute
)
