package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `
broker:
  kafka:
    brokers: ["localhost:9092"]
downstream:
  url: http://downstream.local/prices
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "kafka", cfg.Broker.Type)
	assert.Equal(t, "dtf.daily.trigger", cfg.Broker.Kafka.InputTopic)
	assert.Equal(t, "dtf.daily.trigger.dlq", cfg.Broker.Kafka.DLQTopic)
	assert.Equal(t, 50, cfg.Capture.BatchSize)
	assert.Equal(t, 4, cfg.Capture.Parallelism)
	assert.Equal(t, 5, cfg.Capture.MaxRetryAttempts)
	assert.Equal(t, 3, cfg.Capture.RequeueNotificationThreshold)
	assert.Equal(t, "dtf_daily_prices", cfg.Capture.PriceTable)
	assert.Equal(t, "log", cfg.Notification.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Notification.Dedup.TTL)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
}

func TestLoadConfig_RetryPolicies(t *testing.T) {
	path := writeConfig(t, `
broker:
  kafka:
    brokers: ["localhost:9092"]
retry:
  policies:
    source-fetch:
      max_attempts: 3
      delays: ["100ms", "200ms"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	p, ok := cfg.Retry.Policies["source-fetch"]
	require.True(t, ok)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, p.Delays)
}

func TestLoadConfig_BrokersFromEnv(t *testing.T) {
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	path := writeConfig(t, "logging:\n  level: debug\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, ReadTimeoutSeconds: time.Second, WriteTimeoutSeconds: time.Second},
		Broker: BrokerConfig{
			Type: "kafka",
			Kafka: KafkaConfig{
				Brokers:    []string{"localhost:9092"},
				GroupID:    "g",
				InputTopic: "in",
				DLQTopic:   "in.dlq",
			},
		},
		Capture: CaptureConfig{
			BatchSize:                    10,
			Parallelism:                  2,
			MaxRetryAttempts:             5,
			RequeueNotificationThreshold: 3,
			PriceTable:                   "dtf_daily_prices",
		},
		Artifact:     ArtifactConfig{Directory: "data", Upload: "none"},
		Notification: NotificationConfig{Backend: "log", Dedup: NotificationDedup{Backend: "memory", Size: 10}},
	}
}

func TestValidateStatic(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server.port",
		},
		{
			name:    "no brokers",
			mutate:  func(c *Config) { c.Broker.Kafka.Brokers = nil },
			wantErr: "broker.kafka.brokers",
		},
		{
			name:    "dlq equals input",
			mutate:  func(c *Config) { c.Broker.Kafka.DLQTopic = "in" },
			wantErr: "broker.kafka.dlq_topic",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *Config) { c.Capture.BatchSize = 0 },
			wantErr: "capture.batch_size",
		},
		{
			name:    "zero parallelism",
			mutate:  func(c *Config) { c.Capture.Parallelism = 0 },
			wantErr: "capture.parallelism",
		},
		{
			name:   "zero max retry attempts is allowed",
			mutate: func(c *Config) { c.Capture.MaxRetryAttempts = 0 },
		},
		{
			name:    "injection in table name",
			mutate:  func(c *Config) { c.Capture.PriceTable = "prices; drop table x" },
			wantErr: "capture.price_table",
		},
		{
			name:    "http notifier without base url",
			mutate:  func(c *Config) { c.Notification.Backend = "http" },
			wantErr: "notification.base_url",
		},
		{
			name:    "kafka notifier without topic",
			mutate:  func(c *Config) { c.Notification.Backend = "kafka" },
			wantErr: "notification.topic",
		},
		{
			name:    "redis dedup without redis",
			mutate:  func(c *Config) { c.Notification.Dedup.Backend = "redis" },
			wantErr: "notification.dedup.backend",
		},
		{
			name:    "mongo upload without uri",
			mutate:  func(c *Config) { c.Artifact.Upload = "mongodb" },
			wantErr: "artifact.upload",
		},
		{
			name: "unknown retry kind",
			mutate: func(c *Config) {
				c.Retry.Policies = map[string]RetryPolicyConfig{"nope": {MaxAttempts: 1}}
			},
			wantErr: "retry.policies.nope",
		},
		{
			name: "delay count mismatch",
			mutate: func(c *Config) {
				c.Retry.Policies = map[string]RetryPolicyConfig{"downstream-send": {MaxAttempts: 3, Delays: []time.Duration{time.Second}}}
			},
			wantErr: "retry.policies.downstream-send.delays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := ValidateStatic(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
