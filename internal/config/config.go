package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Capture        CaptureConfig
	Artifact       ArtifactConfig
	Source         SourceConfig
	Downstream     DownstreamConfig
	Notification   NotificationConfig
	Retry          RetryConfig
	Secrets        SecretsConfig
	API            APIConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type  string      `mapstructure:"type"`
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers    []string      `mapstructure:"brokers"`
	GroupID    string        `mapstructure:"group_id"`
	InputTopic string        `mapstructure:"input_topic"`
	DLQTopic   string        `mapstructure:"dlq_topic"`
	MinBytes   int           `mapstructure:"min_bytes"`
	MaxBytes   int           `mapstructure:"max_bytes"`
	MaxWait    time.Duration `mapstructure:"max_wait"`
	// HandlerTimeout bounds one message; shutdown never cancels it earlier.
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	// SASL/PLAIN credentials; empty Username disables SASL.
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CaptureConfig struct {
	BatchSize                    int    `mapstructure:"batch_size"`
	Parallelism                  int    `mapstructure:"parallelism"`
	MaxRetryAttempts             int    `mapstructure:"max_retry_attempts"`
	RequeueNotificationThreshold int    `mapstructure:"requeue_notification_threshold"`
	PriceTable                   string `mapstructure:"price_table"`
}

type ArtifactConfig struct {
	Directory   string `mapstructure:"directory"`
	Upload      string `mapstructure:"upload"` // "mongodb" or "none"
	Collection  string `mapstructure:"collection"`
	Environment string `mapstructure:"environment"`
}

type SourceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DownstreamConfig struct {
	URL         string        `mapstructure:"url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	TokenEnvVar string        `mapstructure:"token_env_var"`
}

type NotificationConfig struct {
	Backend string            `mapstructure:"backend"` // "http", "kafka" or "log"
	BaseURL string            `mapstructure:"base_url"`
	Topic   string            `mapstructure:"topic"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Dedup   NotificationDedup `mapstructure:"dedup"`
}

type NotificationDedup struct {
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RetryConfig overrides the built-in retry policies per kind, keyed by kind
// name (source-fetch, downstream-send, ...).
type RetryConfig struct {
	Policies map[string]RetryPolicyConfig `mapstructure:"policies"`
}

type RetryPolicyConfig struct {
	MaxAttempts int             `mapstructure:"max_attempts"`
	Delays      []time.Duration `mapstructure:"delays"`
}

type SecretsConfig struct {
	DatabaseUserEnv     string `mapstructure:"database_user_env"`
	DatabasePasswordEnv string `mapstructure:"database_password_env"`
	BrokerUserEnv       string `mapstructure:"broker_user_env"`
	BrokerPasswordEnv   string `mapstructure:"broker_password_env"`
}

type APIConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
