// Package notification reports flow incidents to the operations channel.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"dtfcapture/internal/flow"
)

const (
	FeatureDailyCapture = "DTF Daily Capture"
	FeatureAPI          = "DTF API"
	Source              = "BanRepPriceCapture"
)

const (
	TemplateExecutionFailed    = "dtf-daily-execution-failed"
	TemplatePartialRetry       = "dtf-daily-partial-retry"
	TemplateRequeueThreshold   = "dtf-daily-requeue-threshold"
	TemplateRetryLimitExceeded = "dtf-daily-retry-limit-exceeded"
	TemplateCritical           = "dtf-daily-critical"
	TemplateAPIError           = "dtf-api-error"
)

const (
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Payload is serialized as the card message, so the field names are part of
// the wire contract with the notification service.
type Payload struct {
	Title         string `json:"Title"`
	Description   string `json:"Description"`
	Feature       string `json:"Feature"`
	Source        string `json:"Source"`
	CorrelationID string `json:"CorrelationId"`
	TemplateName  string `json:"TemplateName"`
}

type Notifier interface {
	Info(ctx context.Context, payload Payload) error
	Warn(ctx context.Context, payload Payload) error
	Error(ctx context.Context, payload Payload, cause error) error
}

type teamsChat struct {
	CardMessage string `json:"cardMessage"`
}

type envelope struct {
	SendMethod int       `json:"sendMethod"`
	TeamsChat  teamsChat `json:"teamsChat"`
}

// Encode builds the request body expected by the notification service.
func Encode(payload Payload) ([]byte, error) {
	card, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card message: %w", err)
	}
	return json.Marshal(envelope{SendMethod: 2, TeamsChat: teamsChat{CardMessage: string(card)}})
}

// withCorrelation stamps the flow id carried by ctx when the payload has none.
func withCorrelation(ctx context.Context, payload Payload) Payload {
	if payload.CorrelationID != "" {
		return payload
	}
	if fc, ok := flow.FromContext(ctx); ok && !fc.IsZero() {
		payload.CorrelationID = fc.ID.String()
	}
	return payload
}

func dailyPayload(flowID uuid.UUID, template, title, description string) Payload {
	p := Payload{
		Title:        title,
		Description:  description,
		Feature:      FeatureDailyCapture,
		Source:       Source,
		TemplateName: template,
	}
	if flowID != uuid.Nil {
		p.CorrelationID = flowID.String()
	}
	return p
}

func ExecutionFailed(fc flow.Context, cause error) Payload {
	return dailyPayload(fc.ID, TemplateExecutionFailed,
		"DTF daily capture failed",
		fmt.Sprintf("Capture for %s failed: %v", fc.DateString(), cause))
}

func PartialRetry(fc flow.Context, attempt int) Payload {
	return dailyPayload(fc.ID, TemplatePartialRetry,
		"DTF daily capture scheduled for retry",
		fmt.Sprintf("Capture for %s requeued, attempt %d.", fc.DateString(), attempt))
}

func RequeueThreshold(fc flow.Context, attempt, threshold int) Payload {
	return dailyPayload(fc.ID, TemplateRequeueThreshold,
		"DTF daily capture reached the requeue threshold",
		fmt.Sprintf("Capture for %s requeued %d times (threshold %d).", fc.DateString(), attempt, threshold))
}

func RetryLimitExceeded(fc flow.Context, attempt, max int) Payload {
	return dailyPayload(fc.ID, TemplateRetryLimitExceeded,
		"DTF daily capture sent to the dead-letter queue",
		fmt.Sprintf("Capture for %s exceeded %d retries (attempt %d).", fc.DateString(), max, attempt))
}

func Critical(fc flow.Context, message string) Payload {
	return dailyPayload(fc.ID, TemplateCritical, "DTF daily capture critical failure", message)
}

func APIError(correlationID, operation string, cause error) Payload {
	return Payload{
		Title:         "DTF API unexpected error",
		Description:   fmt.Sprintf("%s failed: %v", operation, cause),
		Feature:       FeatureAPI,
		Source:        Source,
		CorrelationID: correlationID,
		TemplateName:  TemplateAPIError,
	}
}
