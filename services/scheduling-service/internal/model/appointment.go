package model

import "time"

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusCompleted AppointmentStatus = "Completed"
	StatusCancelled AppointmentStatus = "Cancelled"
	StatusNoShow    AppointmentStatus = "No-Show"
)

func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	switch st := AppointmentStatus(s); st {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return st, true
	}
	return "", false
}

const (
	// DefaultDurationMinutes applies to appointments stored without a duration.
	DefaultDurationMinutes = 90
	// MaxDurationMinutes bounds the look-behind window of conflict queries.
	MaxDurationMinutes = 12 * 60
)

type Appointment struct {
	ID              string
	TenantID        string
	ClientID        string
	StartAt         time.Time
	DurationMinutes int
	Type            string
	Notes           string
	Status          AppointmentStatus
	ReminderSent    bool
	SourceRequestID string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) Duration() time.Duration {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes * time.Minute
	}
	return time.Duration(a.DurationMinutes) * time.Minute
}

// End is the exclusive end of the appointment's slot.
func (a Appointment) End() time.Time {
	return a.StartAt.Add(a.Duration())
}
