package retry

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Kind string

const (
	KindSourceFetch        Kind = "source-fetch"
	KindDownstreamSend     Kind = "downstream-send"
	KindNotificationSend   Kind = "notification-send"
	KindPersistenceConnect Kind = "persistence-connect"
	KindBrokerConnect      Kind = "broker-connect"
)

func Kinds() []Kind {
	return []Kind{
		KindSourceFetch,
		KindDownstreamSend,
		KindNotificationSend,
		KindPersistenceConnect,
		KindBrokerConnect,
	}
}

func (k Kind) isHTTP() bool {
	return k == KindSourceFetch || k == KindDownstreamSend || k == KindNotificationSend
}

// Policy allows MaxAttempts calls; Delays[i] is the wait after the (i+1)th failure.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

func NewPolicy(maxAttempts int, delays ...time.Duration) (Policy, error) {
	if maxAttempts < 1 {
		return Policy{}, fmt.Errorf("max attempts must be at least 1, got %d", maxAttempts)
	}
	if len(delays) != maxAttempts-1 {
		return Policy{}, fmt.Errorf("expected %d delays for %d attempts, got %d", maxAttempts-1, maxAttempts, len(delays))
	}
	for i, d := range delays {
		if d < 0 {
			return Policy{}, fmt.Errorf("delay %d is negative", i)
		}
	}
	return Policy{MaxAttempts: maxAttempts, Delays: append([]time.Duration(nil), delays...)}, nil
}

func mustPolicy(maxAttempts int, delays ...time.Duration) Policy {
	p, err := NewPolicy(maxAttempts, delays...)
	if err != nil {
		panic(err)
	}
	return p
}

func DefaultPolicies() map[Kind]Policy {
	return map[Kind]Policy{
		KindSourceFetch:        mustPolicy(3, 500*time.Millisecond, time.Second),
		KindDownstreamSend:     mustPolicy(3, 500*time.Millisecond, time.Second),
		KindNotificationSend:   mustPolicy(3, 500*time.Millisecond, time.Second),
		KindPersistenceConnect: mustPolicy(3, 200*time.Millisecond, 500*time.Millisecond),
		KindBrokerConnect:      mustPolicy(5, 500*time.Millisecond, time.Second, 2*time.Second, 4*time.Second),
	}
}

// scheduleBackOff walks an explicit delay list and stops when it runs out.
type scheduleBackOff struct {
	delays []time.Duration
	next   int
}

func newScheduleBackOff(delays []time.Duration) *scheduleBackOff {
	return &scheduleBackOff{delays: delays}
}

func (b *scheduleBackOff) NextBackOff() time.Duration {
	if b.next >= len(b.delays) {
		return backoff.Stop
	}
	d := b.delays[b.next]
	b.next++
	return d
}

func (b *scheduleBackOff) Reset() {
	b.next = 0
}
