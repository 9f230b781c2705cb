package models

import (
	"fmt"
	"time"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateTrigger(t *Trigger) error {
	if t == nil {
		return &ValidationError{
			Field:   "trigger",
			Message: "trigger cannot be nil",
		}
	}

	if t.CaptureDate != "" {
		if _, err := time.Parse(dateLayout, t.CaptureDate); err != nil {
			return &ValidationError{
				Field:   "capture_date",
				Message: fmt.Sprintf("capture date must be yyyy-MM-dd, got %q", t.CaptureDate),
			}
		}
	}

	return nil
}

// CaptureDateOr returns the trigger's capture date, or fallback when absent.
func (t *Trigger) CaptureDateOr(fallback time.Time) time.Time {
	if t == nil || t.CaptureDate == "" {
		return fallback
	}
	d, err := time.Parse(dateLayout, t.CaptureDate)
	if err != nil {
		return fallback
	}
	return d
}
