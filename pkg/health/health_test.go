package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticChecker struct {
	name string
	err  error
}

func (c staticChecker) Name() string                  { return c.name }
func (c staticChecker) Check(_ context.Context) error { return c.err }

func TestCheckerRegistry(t *testing.T) {
	registry := NewCheckerRegistry()
	registry.Register(staticChecker{name: "postgresql"})
	registry.Register(staticChecker{name: "redis", err: errors.New("connection refused")})

	h := registry.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, h.Status)
	assert.Equal(t, StatusHealthy, h.Checks["postgresql"].Status)
	assert.Equal(t, StatusUnhealthy, h.Checks["redis"].Status)
	assert.Equal(t, "connection refused", h.Checks["redis"].Message)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		checkers []Checker
		want     int
	}{
		{"no checkers", nil, http.StatusOK},
		{"all healthy", []Checker{staticChecker{name: "a"}}, http.StatusOK},
		{"one failing", []Checker{staticChecker{name: "a"}, staticChecker{name: "b", err: errors.New("down")}}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewCheckerRegistry()
			for _, c := range tt.checkers {
				registry.Register(c)
			}
			router := gin.New()
			router.GET("/health", Handler(registry))

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.want, w.Code)

			var body Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Len(t, body.Checks, len(tt.checkers))
		})
	}
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	require.Error(t, err)
	assert.Equal(t, "kafka", NewKafkaChecker(nil).Name())
}
