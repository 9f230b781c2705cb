package secrets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dtfcapture/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database.Postgres.User = "file_user"
	cfg.Database.Postgres.Password = "file_pass"
	cfg.Broker.Kafka.Username = ""
	cfg.Secrets = config.SecretsConfig{
		DatabaseUserEnv:     "DTF_TEST_DB_USER",
		DatabasePasswordEnv: "DTF_TEST_DB_PASSWORD",
		BrokerUserEnv:       "DTF_TEST_BROKER_USER",
		BrokerPasswordEnv:   "DTF_TEST_BROKER_PASSWORD",
	}
	return cfg
}

func TestEnvProvider_PrefersEnvironment(t *testing.T) {
	t.Setenv("DTF_TEST_DB_USER", "env_user")
	t.Setenv("DTF_TEST_DB_PASSWORD", "env_pass")

	creds, err := NewEnvProvider(testConfig()).DatabaseCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "env_user", Password: "env_pass"}, creds)
}

func TestEnvProvider_FallsBackToConfig(t *testing.T) {
	t.Setenv("DTF_TEST_DB_USER", "")

	creds, err := NewEnvProvider(testConfig()).DatabaseCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "file_user", Password: "file_pass"}, creds)
}

func TestEnvProvider_UnnamedVariableUsesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Secrets = config.SecretsConfig{}
	cfg.Broker.Kafka.Username = "svc"
	cfg.Broker.Kafka.Password = "secret"

	creds, err := NewEnvProvider(cfg).BrokerCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Credentials{Username: "svc", Password: "secret"}, creds)
}

func TestApply(t *testing.T) {
	t.Setenv("DTF_TEST_DB_PASSWORD", "rotated")
	t.Setenv("DTF_TEST_BROKER_USER", "broker_user")
	t.Setenv("DTF_TEST_BROKER_PASSWORD", "broker_pass")

	cfg := testConfig()
	require.NoError(t, Apply(context.Background(), NewEnvProvider(cfg), cfg))

	assert.Equal(t, "file_user", cfg.Database.Postgres.User)
	assert.Equal(t, "rotated", cfg.Database.Postgres.Password)
	assert.Equal(t, "broker_user", cfg.Broker.Kafka.Username)
	assert.Equal(t, "broker_pass", cfg.Broker.Kafka.Password)
}

func TestApply_RequiresDatabaseUser(t *testing.T) {
	t.Setenv("DTF_TEST_DB_USER", "")

	cfg := testConfig()
	cfg.Database.Postgres.User = ""
	assert.Error(t, Apply(context.Background(), NewEnvProvider(cfg), cfg))
}
