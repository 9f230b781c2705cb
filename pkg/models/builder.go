package models

import "time"

const dateLayout = "2006-01-02"

type TriggerBuilder struct {
	trigger *Trigger
}

func NewTriggerBuilder() *TriggerBuilder {
	return &TriggerBuilder{trigger: &Trigger{}}
}

func (b *TriggerBuilder) WithID(id string) *TriggerBuilder {
	b.trigger.ID = id
	return b
}

func (b *TriggerBuilder) WithSource(source string) *TriggerBuilder {
	b.trigger.Source = source
	return b
}

func (b *TriggerBuilder) WithCaptureDate(date time.Time) *TriggerBuilder {
	b.trigger.CaptureDate = date.Format(dateLayout)
	return b
}

func (b *TriggerBuilder) Build() *Trigger {
	if b.trigger.Timestamp.IsZero() {
		b.trigger.Timestamp = time.Now().UTC()
	}
	return b.trigger
}
