// Package flow carries the identity of one capture attempt through a call chain.
package flow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"dtfcapture/pkg/logging"
)

const DateLayout = "2006-01-02"

// Context identifies a flow. It is passed explicitly; Attach only mirrors it
// into a context.Context so logs and spans can be correlated.
type Context struct {
	ID          uuid.UUID
	CaptureDate time.Time
}

func New(id uuid.UUID, captureDate time.Time) Context {
	return Context{ID: id, CaptureDate: Date(captureDate)}
}

func (c Context) DateString() string {
	return c.CaptureDate.Format(DateLayout)
}

func (c Context) IsZero() bool {
	return c.ID == uuid.Nil
}

// IDFromCorrelation reuses a correlation id that is a UUID, or mints a new one.
func IDFromCorrelation(raw string) uuid.UUID {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if id, err := uuid.Parse(raw); err == nil && id != uuid.Nil {
			return id
		}
	}
	return uuid.New()
}

// Date truncates t to a UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return Date(time.Now().UTC())
}

func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(raw))
}

type ctxKey struct{}

func Attach(ctx context.Context, fc Context) context.Context {
	ctx = context.WithValue(ctx, ctxKey{}, fc)
	return logging.WithFlow(ctx, fc.ID.String(), fc.DateString())
}

func FromContext(ctx context.Context) (Context, bool) {
	fc, ok := ctx.Value(ctxKey{}).(Context)
	return fc, ok
}
