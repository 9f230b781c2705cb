package state

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusReceived   Status = "Received"
	StatusProcessing Status = "Processing"
	StatusPersisted  Status = "Persisted"
	StatusSent       Status = "Sent"
	StatusFailed     Status = "Failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusReceived, StatusProcessing, StatusPersisted, StatusSent, StatusFailed:
		return true
	}
	return false
}

// State is the durable progress record of one flow.
type State struct {
	CaptureDate      time.Time  `json:"capture_date"`
	FlowID           uuid.UUID  `json:"flow_id"`
	Status           Status     `json:"status"`
	LastUpdatedAt    time.Time  `json:"last_updated_at"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
	DownstreamSendID *uuid.UUID `json:"downstream_send_id,omitempty"`
}

// IsComplete reports whether the flow needs no further work. A Persisted flow
// with a recorded send id crashed between the send and the final status write.
func (s *State) IsComplete() bool {
	if s == nil {
		return false
	}
	return s.Status == StatusSent || (s.Status == StatusPersisted && s.DownstreamSendID != nil)
}
