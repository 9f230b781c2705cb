package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", 15*time.Second)
	viper.SetDefault("server.write_timeout_seconds", 30*time.Second)

	viper.SetDefault("broker.type", "kafka")
	viper.SetDefault("broker.kafka.group_id", "dtf-daily-capture")
	viper.SetDefault("broker.kafka.input_topic", "dtf.daily.trigger")
	viper.SetDefault("broker.kafka.dlq_topic", "dtf.daily.trigger.dlq")
	viper.SetDefault("broker.kafka.max_wait", time.Second)
	viper.SetDefault("broker.kafka.handler_timeout", 5*time.Minute)

	viper.SetDefault("capture.batch_size", 50)
	viper.SetDefault("capture.parallelism", 4)
	viper.SetDefault("capture.max_retry_attempts", 5)
	viper.SetDefault("capture.requeue_notification_threshold", 3)
	viper.SetDefault("capture.price_table", "dtf_daily_prices")

	viper.SetDefault("artifact.directory", "data/csv")
	viper.SetDefault("artifact.upload", "none")
	viper.SetDefault("artifact.collection", "dtf_artifacts")

	viper.SetDefault("source.base_url", "https://totoro.banrep.gov.co/nsi-jax-ws/rest/data")
	viper.SetDefault("source.timeout", 30*time.Second)

	viper.SetDefault("downstream.timeout", 30*time.Second)
	viper.SetDefault("downstream.token_env_var", "BANREP_BEARER_TOKEN")

	viper.SetDefault("notification.backend", "log")
	viper.SetDefault("notification.timeout", 10*time.Second)
	viper.SetDefault("notification.dedup.backend", "memory")
	viper.SetDefault("notification.dedup.size", 10000)
	viper.SetDefault("notification.dedup.ttl", 24*time.Hour)

	viper.SetDefault("secrets.database_user_env", "DTF_DATABASE_USER")
	viper.SetDefault("secrets.database_password_env", "DTF_DATABASE_PASSWORD")
	viper.SetDefault("secrets.broker_user_env", "DTF_BROKER_USER")
	viper.SetDefault("secrets.broker_password_env", "DTF_BROKER_PASSWORD")

	viper.SetDefault("api.rate_limit.enabled", true)
	viper.SetDefault("api.rate_limit.rps", 10.0)
	viper.SetDefault("api.rate_limit.burst", 20)
	viper.SetDefault("api.rate_limit.cleanup_interval", 60)
	viper.SetDefault("api.rate_limit.max_age", 300)

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 1)
	viper.SetDefault("circuit_breaker.interval", time.Minute)
	viper.SetDefault("circuit_breaker.timeout", 30*time.Second)
	viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("circuit_breaker.min_requests", 5)

	viper.SetDefault("tracing.service_name", "dtf-capture-service")
	viper.SetDefault("tracing.sampler.type", "parentbased_always_on")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}

func bindEnvVariables() {
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.kafka.input_topic", "BROKER_KAFKA_INPUT_TOPIC")
	viper.BindEnv("broker.kafka.dlq_topic", "BROKER_KAFKA_DLQ_TOPIC")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("source.base_url", "SOURCE_BASE_URL")
	viper.BindEnv("downstream.url", "DOWNSTREAM_URL")
	viper.BindEnv("notification.base_url", "NOTIFICATION_BASE_URL")
	viper.BindEnv("artifact.directory", "ARTIFACT_DIRECTORY")
	viper.BindEnv("artifact.environment", "ARTIFACT_ENVIRONMENT")

	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.read_timeout_seconds", "SERVER_READ_TIMEOUT_SECONDS")
	viper.BindEnv("server.write_timeout_seconds", "SERVER_WRITE_TIMEOUT_SECONDS")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	return nil
}
