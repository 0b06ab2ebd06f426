package model

import "time"

type RequestStatus string

const (
	RequestPending  RequestStatus = "Pending"
	RequestApproved RequestStatus = "Approved"
	RequestRejected RequestStatus = "Rejected"
)

// Terminal reports whether the request has left Pending. Terminal requests
// never change again.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// AppointmentRequest is a client's unconfirmed scheduling proposal.
type AppointmentRequest struct {
	ID            string
	TenantID      string
	ClientID      string
	RequestedDate string
	RequestedTime string
	Type          string
	Status        RequestStatus
	AppointmentID string
	DecidedBy     string
	DecidedAt     *time.Time
	CreatedAt     time.Time
}

// PendingRequest is a request as listed on the staff dashboard.
type PendingRequest struct {
	AppointmentRequest
	ClientName  string
	ClientEmail string
}
