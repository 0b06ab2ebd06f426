// Package storage declares the persistence boundary of the scheduling core.
// Implementations live in storage/postgres and storage/memory.
package storage

import (
	"context"
	"time"

	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
)

// Store runs units of work. InTenantTx serializes every transaction of one
// tenant against each other, which is what makes check-then-book atomic.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	InTenantTx(ctx context.Context, tenantID string, fn func(ctx context.Context, tx Tx) error) error
}

type AppointmentFilter struct {
	ClientID string
	From     time.Time // inclusive, zero means unbounded
	To       time.Time // exclusive, zero means unbounded
	Limit    int
}

type RequestFilter struct {
	ClientID string
	Status   model.RequestStatus
}

// Tx is the set of operations available inside a unit of work. Lookups by id
// are not tenant scoped so callers can tell Forbidden from NotFound; missing
// rows surface as apperr.ErrNotFound.
type Tx interface {
	GetClient(ctx context.Context, id string) (model.Client, error)
	// GetClientByPortalToken only resolves active clients.
	GetClientByPortalToken(ctx context.Context, token string) (model.Client, error)

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	ListAppointments(ctx context.Context, tenantID string, f AppointmentFilter) ([]model.Appointment, error)
	ListAppointmentsInRange(ctx context.Context, tenantID string, from, to time.Time) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, a *model.Appointment) error
	UpdateAppointment(ctx context.Context, a *model.Appointment) error
	DeleteAppointment(ctx context.Context, id string) error

	GetRequest(ctx context.Context, id string) (model.AppointmentRequest, error)
	ListRequests(ctx context.Context, tenantID string, f RequestFilter) ([]model.AppointmentRequest, error)
	InsertRequest(ctx context.Context, r *model.AppointmentRequest) error
	UpdateRequest(ctx context.Context, r *model.AppointmentRequest) error

	AddEvent(ctx context.Context, evt outbox.Event) error
}
