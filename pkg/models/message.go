package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Trigger is the body of a daily capture trigger. Every field is optional: an
// empty body asks for today's capture.
type Trigger struct {
	ID          string    `json:"id,omitempty"`
	Source      string    `json:"source,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
	CaptureDate string    `json:"capture_date,omitempty"` // yyyy-MM-dd
}

// ParseTrigger decodes a trigger body. A blank body yields an empty trigger.
func ParseTrigger(body []byte) (*Trigger, error) {
	if strings.TrimSpace(string(body)) == "" {
		return &Trigger{}, nil
	}
	var t Trigger
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, &ValidationError{Field: "body", Message: "trigger is not valid JSON: " + err.Error()}
	}
	if err := ValidateTrigger(&t); err != nil {
		return nil, err
	}
	return &t, nil
}
