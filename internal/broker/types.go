package broker

import (
	"context"
	"strings"
)

// Message is a broker-neutral view of one record. Header names are matched
// case-insensitively.
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
}

func (m Message) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// CloneHeaders returns a copy of the headers that is safe to modify.
func (m Message) CloneHeaders() map[string]string {
	out := make(map[string]string, len(m.Headers)+2)
	for k, v := range m.Headers {
		out[k] = v
	}
	return out
}

type Producer interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Close() error
}

// Consumer delivers one message at a time. A nil handler result acknowledges
// the message; an error stops consumption without acknowledging it.
type Consumer interface {
	Consume(ctx context.Context, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, msg Message) error
