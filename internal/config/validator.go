package config

import (
	"fmt"
	"regexp"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errors []error

	if err := validateServer(cfg.Server); err != nil {
		errors = append(errors, err)
	}

	if err := validateBroker(cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateDatabase(cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateCapture(cfg.Capture); err != nil {
		errors = append(errors, err)
	}

	if err := validateArtifact(cfg.Artifact, cfg.Database); err != nil {
		errors = append(errors, err)
	}

	if err := validateNotification(cfg.Notification, cfg.Database, cfg.Broker); err != nil {
		errors = append(errors, err)
	}

	if err := validateRetry(cfg.Retry); err != nil {
		errors = append(errors, err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	if cfg.Type == "" {
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	}

	switch cfg.Type {
	case "kafka":
		return validateKafka(cfg.Kafka)
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	if cfg.InputTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.input_topic",
			Message: "input topic is required",
		}
	}

	if cfg.DLQTopic == "" {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "dead-letter topic is required",
		}
	}

	if cfg.DLQTopic == cfg.InputTopic {
		return &ValidationError{
			Field:   "broker.kafka.dlq_topic",
			Message: "dead-letter topic must differ from the input topic",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func validateCapture(cfg CaptureConfig) error {
	if cfg.BatchSize < 1 {
		return &ValidationError{
			Field:   "capture.batch_size",
			Message: "batch size must be at least 1",
		}
	}

	if cfg.Parallelism < 1 {
		return &ValidationError{
			Field:   "capture.parallelism",
			Message: "parallelism must be at least 1",
		}
	}

	if cfg.MaxRetryAttempts < 0 {
		return &ValidationError{
			Field:   "capture.max_retry_attempts",
			Message: "max retry attempts must be non-negative",
		}
	}

	if cfg.RequeueNotificationThreshold < 1 {
		return &ValidationError{
			Field:   "capture.requeue_notification_threshold",
			Message: "requeue notification threshold must be at least 1",
		}
	}

	if !tableNamePattern.MatchString(cfg.PriceTable) {
		return &ValidationError{
			Field:   "capture.price_table",
			Message: fmt.Sprintf("invalid table name %q", cfg.PriceTable),
		}
	}

	return nil
}

func validateArtifact(cfg ArtifactConfig, db DatabaseConfig) error {
	if cfg.Directory == "" {
		return &ValidationError{
			Field:   "artifact.directory",
			Message: "artifact directory is required",
		}
	}

	switch strings.ToLower(cfg.Upload) {
	case "", "none":
	case "mongodb":
		if db.MongoDB.URI == "" {
			return &ValidationError{
				Field:   "artifact.upload",
				Message: "mongodb upload requires database.mongodb.uri",
			}
		}
	default:
		return &ValidationError{
			Field:   "artifact.upload",
			Message: fmt.Sprintf("invalid upload backend: %s (valid: none, mongodb)", cfg.Upload),
		}
	}

	return nil
}

func validateNotification(cfg NotificationConfig, db DatabaseConfig, broker BrokerConfig) error {
	switch strings.ToLower(cfg.Backend) {
	case "", "log":
	case "http":
		if cfg.BaseURL == "" {
			return &ValidationError{
				Field:   "notification.base_url",
				Message: "base URL is required for the http backend",
			}
		}
	case "kafka":
		if cfg.Topic == "" {
			return &ValidationError{
				Field:   "notification.topic",
				Message: "topic is required for the kafka backend",
			}
		}
		if broker.Type != "kafka" {
			return &ValidationError{
				Field:   "notification.backend",
				Message: "kafka backend requires broker.type kafka",
			}
		}
	default:
		return &ValidationError{
			Field:   "notification.backend",
			Message: fmt.Sprintf("invalid backend: %s (valid: log, http, kafka)", cfg.Backend),
		}
	}

	switch strings.ToLower(cfg.Dedup.Backend) {
	case "", "memory":
		if cfg.Dedup.Size < 0 {
			return &ValidationError{
				Field:   "notification.dedup.size",
				Message: "size must be non-negative",
			}
		}
	case "redis":
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "notification.dedup.backend",
				Message: "redis backend requires database.redis.host",
			}
		}
	default:
		return &ValidationError{
			Field:   "notification.dedup.backend",
			Message: fmt.Sprintf("invalid dedup backend: %s (valid: memory, redis)", cfg.Dedup.Backend),
		}
	}

	if cfg.Dedup.TTL < 0 {
		return &ValidationError{
			Field:   "notification.dedup.ttl",
			Message: "TTL must be non-negative",
		}
	}

	return nil
}

var retryKinds = map[string]bool{
	"source-fetch":        true,
	"downstream-send":     true,
	"notification-send":   true,
	"persistence-connect": true,
	"broker-connect":      true,
}

func validateRetry(cfg RetryConfig) error {
	for kind, p := range cfg.Policies {
		if !retryKinds[kind] {
			return &ValidationError{
				Field:   "retry.policies." + kind,
				Message: "unknown retry kind",
			}
		}
		if p.MaxAttempts < 1 {
			return &ValidationError{
				Field:   "retry.policies." + kind + ".max_attempts",
				Message: "max_attempts must be at least 1",
			}
		}
		if len(p.Delays) != p.MaxAttempts-1 {
			return &ValidationError{
				Field:   "retry.policies." + kind + ".delays",
				Message: fmt.Sprintf("expected %d delays, got %d", p.MaxAttempts-1, len(p.Delays)),
			}
		}
	}
	return nil
}
