package retry

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"

	"github.com/lib/pq"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
)

// IsTransient reports whether err is worth another attempt for an operation of kind.
// Errors marked fatal are never transient; errors marked retryable always are.
func IsTransient(kind Kind, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var fatal FatalError
	if errors.As(err, &fatal) && fatal.IsFatal() {
		return false
	}
	var retryable RetryableError
	if errors.As(err, &retryable) && retryable.IsRetryable() {
		return true
	}

	switch {
	case kind.isHTTP():
		return isNetworkError(err) || isTimeout(err)
	case kind == KindPersistenceConnect:
		return isDriverError(err) || isTimeout(err) || isSocketError(err)
	case kind == KindBrokerConnect:
		return isBrokerUnreachable(err) || isSocketError(err)
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return isSocketError(err)
}

func isSocketError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

func isDriverError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}
	return errors.Is(err, driver.ErrBadConn)
}

func isBrokerUnreachable(err error) bool {
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && isBrokerUnreachable(e) {
				return true
			}
		}
		return false
	}

	var kafkaErr kafka.Error
	if errors.As(err, &kafkaErr) {
		return kafkaErr.Temporary()
	}
	return isTimeout(err)
}

// IsTransientStatus reports whether an HTTP response status is worth another attempt.
func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
