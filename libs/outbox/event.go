// Package outbox implements the transactional outbox: domain events are
// written in the same transaction as the state change and relayed to Kafka
// by a Publisher.
package outbox

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Event types emitted by the scheduling core. The Kafka topic equals the
// event type.
const (
	AppointmentBooked      = "appointment.booked"
	AppointmentRescheduled = "appointment.rescheduled"
	AppointmentStatus      = "appointment.status_changed"
	AppointmentDeleted     = "appointment.deleted"
	RequestSubmitted       = "appointment_request.submitted"
	RequestApproved        = "appointment_request.approved"
	RequestRejected        = "appointment_request.rejected"
	ReminderSent           = "reminder.sent"
	PaymentReminderSent    = "payment.reminder_sent"
)

type Event struct {
	ID            string
	TenantID      string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// NewEvent marshals payload as JSON and assigns a fresh event id.
func NewEvent(tenantID, aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.NewString(),
		TenantID:      tenantID,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
