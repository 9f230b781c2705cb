// Package secrets resolves credentials that should not live in the config file.
package secrets

import (
	"context"
	"fmt"
	"os"

	"dtfcapture/internal/config"
)

type Credentials struct {
	Username string
	Password string
}

type Provider interface {
	DatabaseCredentials(ctx context.Context) (Credentials, error)
	BrokerCredentials(ctx context.Context) (Credentials, error)
}

// EnvProvider reads credentials from the environment variables named in the
// secrets config. Unset or empty variables fall back to the configured values.
type EnvProvider struct {
	names    config.SecretsConfig
	database Credentials
	broker   Credentials
	lookup   func(string) (string, bool)
}

func NewEnvProvider(cfg *config.Config) *EnvProvider {
	return &EnvProvider{
		names: cfg.Secrets,
		database: Credentials{
			Username: cfg.Database.Postgres.User,
			Password: cfg.Database.Postgres.Password,
		},
		broker: Credentials{
			Username: cfg.Broker.Kafka.Username,
			Password: cfg.Broker.Kafka.Password,
		},
		lookup: os.LookupEnv,
	}
}

func (p *EnvProvider) DatabaseCredentials(_ context.Context) (Credentials, error) {
	return Credentials{
		Username: p.env(p.names.DatabaseUserEnv, p.database.Username),
		Password: p.env(p.names.DatabasePasswordEnv, p.database.Password),
	}, nil
}

func (p *EnvProvider) BrokerCredentials(_ context.Context) (Credentials, error) {
	return Credentials{
		Username: p.env(p.names.BrokerUserEnv, p.broker.Username),
		Password: p.env(p.names.BrokerPasswordEnv, p.broker.Password),
	}, nil
}

func (p *EnvProvider) env(name, fallback string) string {
	if name == "" {
		return fallback
	}
	if v, ok := p.lookup(name); ok && v != "" {
		return v
	}
	return fallback
}

// Apply writes the resolved credentials into cfg before any connection is
// opened. The database user is mandatory once secrets are resolved.
func Apply(ctx context.Context, p Provider, cfg *config.Config) error {
	db, err := p.DatabaseCredentials(ctx)
	if err != nil {
		return err
	}
	if db.Username == "" {
		return fmt.Errorf("database user is not configured, set %s or database.postgres.user", cfg.Secrets.DatabaseUserEnv)
	}
	cfg.Database.Postgres.User = db.Username
	cfg.Database.Postgres.Password = db.Password

	broker, err := p.BrokerCredentials(ctx)
	if err != nil {
		return err
	}
	cfg.Broker.Kafka.Username = broker.Username
	cfg.Broker.Kafka.Password = broker.Password
	return nil
}
