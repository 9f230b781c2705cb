package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"dtfcapture/internal/broker"
	"dtfcapture/internal/config"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/messaging"
	"dtfcapture/internal/notification"
	"dtfcapture/pkg/circuitbreaker"
	"dtfcapture/pkg/retry"
)

// newRetryEngine starts from the built-in policies and applies the configured overrides.
func newRetryEngine(cfg config.RetryConfig, log logger.Logger) (*retry.Engine, error) {
	var opts []retry.Option
	for name, p := range cfg.Policies {
		policy, err := retry.NewPolicy(p.MaxAttempts, p.Delays...)
		if err != nil {
			return nil, fmt.Errorf("invalid retry policy %s: %w", name, err)
		}
		opts = append(opts, retry.WithPolicy(retry.Kind(name), policy))
	}
	return retry.NewEngine(log, opts...), nil
}

// newBreaker returns nil when circuit breaking is disabled; callers treat a nil breaker as pass-through.
func newBreaker(name string, cfg config.CircuitBreakerConfig, log logger.Logger) *circuitbreaker.Breaker {
	if !cfg.Enabled {
		return nil
	}
	bc := circuitbreaker.DefaultConfig(name)
	if cfg.MaxRequests > 0 {
		bc.MaxRequests = cfg.MaxRequests
	}
	if cfg.Interval > 0 {
		bc.Interval = cfg.Interval
	}
	if cfg.Timeout > 0 {
		bc.Timeout = cfg.Timeout
	}
	if cfg.FailureRatio > 0 {
		bc.FailureRatio = cfg.FailureRatio
	}
	if cfg.MinRequests > 0 {
		bc.MinRequests = cfg.MinRequests
	}
	bc.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}
	return circuitbreaker.New(bc)
}

func newNotifier(cfg config.NotificationConfig, producer broker.Producer, engine *retry.Engine, log logger.Logger) (notification.Notifier, error) {
	switch cfg.Backend {
	case "http":
		return notification.NewHTTPNotifier(cfg.BaseURL, cfg.Timeout, engine, log)
	case "kafka":
		return notification.NewKafkaNotifier(producer, cfg.Topic, engine), nil
	case "", "log":
		return notification.NewLogNotifier(log), nil
	default:
		return nil, fmt.Errorf("unknown notification backend: %s", cfg.Backend)
	}
}

func newFlagStore(cfg config.NotificationDedup, rdb *redis.Client) messaging.FlagStore {
	if cfg.Backend == "redis" && rdb != nil {
		return messaging.NewRedisFlagStore(rdb, cfg.TTL)
	}
	return messaging.NewMemoryFlagStore(cfg.Size, cfg.TTL)
}
