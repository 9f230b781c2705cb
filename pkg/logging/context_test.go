package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLogFields(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithMessageID(ctx, "dtf.daily.trigger/0/42")
	ctx = WithFlow(ctx, "7f8e", "2024-08-19")

	assert.Equal(t, []interface{}{
		TraceIDKey, "trace-1",
		MessageIDKey, "dtf.daily.trigger/0/42",
		FlowIDKey, "7f8e",
		CaptureDateKey, "2024-08-19",
	}, GetLogFields(ctx))
}

func TestGetLogFields_Empty(t *testing.T) {
	assert.Empty(t, GetLogFields(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))
}
