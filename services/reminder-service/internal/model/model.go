// Package model holds the read models the reminder sweeps work on. They are
// projections joined with the client record, never written back whole.
package model

import "time"

// DueAppointment is an appointment inside the reminder window.
type DueAppointment struct {
	AppointmentID string
	TenantID      string
	ClientID      string
	ClientName    string
	ClientEmail   string
	PortalToken   string
	StartAt       time.Time
	Type          string
	Status        string
}

// DuePayment is a Pending payment whose due date is the sweep's target day.
type DuePayment struct {
	PaymentID   string
	TenantID    string
	ClientID    string
	ClientName  string
	ClientEmail string
	PortalToken string
	AmountCents int64
	Currency    string
	DueDate     time.Time
	PaymentLink string
}

// Summary counts the outcome of one sweep.
type Summary struct {
	Found   int
	Sent    int
	Failed  int
	Skipped int
}

func (s Summary) LogAttrs() []any {
	return []any{"found", s.Found, "sent", s.Sent, "failed", s.Failed, "skipped", s.Skipped}
}
