// Package appointments books and maintains a tenant's appointments. Every
// write that can create an overlap runs its availability check inside the
// same tenant-serialized transaction as the write.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/availability"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/metrics"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

type Service struct {
	store           storage.Store
	clock           clock.Clock
	metrics         *metrics.Metrics
	defaultDuration int
}

// NewService uses model.DefaultDurationMinutes when defaultDuration is not positive.
func NewService(store storage.Store, clk clock.Clock, m *metrics.Metrics, defaultDuration int) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if defaultDuration <= 0 {
		defaultDuration = model.DefaultDurationMinutes
	}
	return &Service{store: store, clock: clk, metrics: m, defaultDuration: defaultDuration}
}

func (s *Service) DefaultDuration() int { return s.defaultDuration }

// NewAppointment is a staff booking. A zero DurationMinutes selects the
// service default.
type NewAppointment struct {
	ClientID        string
	StartTime       string
	Type            string
	Notes           string
	DurationMinutes int
}

func (s *Service) Book(ctx context.Context, tenantID string, in NewAppointment) (model.Appointment, error) {
	if err := requireTenant(tenantID); err != nil {
		return model.Appointment{}, err
	}
	start, err := clock.ParseInstant(in.StartTime)
	if err != nil {
		return model.Appointment{}, err
	}
	typ := strings.TrimSpace(in.Type)
	if typ == "" {
		return model.Appointment{}, fmt.Errorf("%w: type is required", apperr.ErrInvalidArgument)
	}
	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		return model.Appointment{}, fmt.Errorf("%w: client_id is required", apperr.ErrInvalidArgument)
	}

	appt := model.Appointment{
		TenantID:        tenantID,
		ClientID:        clientID,
		StartAt:         start,
		DurationMinutes: s.durationOrDefault(in.DurationMinutes),
		Type:            typ,
		Notes:           strings.TrimSpace(in.Notes),
		Status:          model.StatusScheduled,
	}
	err = s.store.InTenantTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		client, err := tx.GetClient(ctx, clientID)
		if err != nil {
			return err
		}
		if client.TenantID != tenantID {
			return fmt.Errorf("%w: client belongs to another tenant", apperr.ErrForbidden)
		}
		return Create(ctx, tx, &appt, true)
	})
	s.observe("book", err)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

// Create inserts appt and its outbox event on tx. With check set the slot
// must be free; callers hold the tenant transaction.
func Create(ctx context.Context, tx storage.Tx, appt *model.Appointment, check bool) error {
	if check {
		if err := availability.NewChecker(tx).Require(ctx, appt.TenantID, appt.StartAt, appt.DurationMinutes, ""); err != nil {
			return err
		}
	}
	if err := tx.InsertAppointment(ctx, appt); err != nil {
		return err
	}
	return emit(ctx, tx, *appt, outbox.AppointmentBooked)
}

// Reschedule moves an appointment. The appointment's own slot is excluded
// from the check, and the reminder flag is cleared so the new time is
// reminded again.
func (s *Service) Reschedule(ctx context.Context, tenantID, id, startTime string, durationMinutes int) (model.Appointment, error) {
	if err := requireTenant(tenantID); err != nil {
		return model.Appointment{}, err
	}
	start, err := clock.ParseInstant(startTime)
	if err != nil {
		return model.Appointment{}, err
	}

	var out model.Appointment
	err = s.store.InTenantTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		appt, err := owned(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if appt.Status != model.StatusScheduled {
			return fmt.Errorf("%w: only scheduled appointments can be rescheduled (status %s)", apperr.ErrInvalidState, appt.Status)
		}
		duration := appt.DurationMinutes
		if durationMinutes != 0 {
			duration = durationMinutes
		}
		if err := availability.NewChecker(tx).Require(ctx, tenantID, start, duration, appt.ID); err != nil {
			return err
		}
		appt.StartAt = start
		appt.DurationMinutes = duration
		appt.ReminderSent = false
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		out = appt
		return emit(ctx, tx, appt, outbox.AppointmentRescheduled)
	})
	s.observe("reschedule", err)
	return out, err
}

// UpdateStatus sets Scheduled, Completed, Cancelled or No-Show. Restoring a
// cancelled appointment to Scheduled claims its slot again, so it is checked.
func (s *Service) UpdateStatus(ctx context.Context, tenantID, id, status string) (model.Appointment, error) {
	if err := requireTenant(tenantID); err != nil {
		return model.Appointment{}, err
	}
	next, ok := model.ParseAppointmentStatus(status)
	if !ok {
		return model.Appointment{}, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidArgument, status)
	}

	var out model.Appointment
	err := s.store.InTenantTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		appt, err := owned(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if appt.Status == next {
			out = appt
			return nil
		}
		if appt.Status == model.StatusCancelled && next == model.StatusScheduled {
			if err := availability.NewChecker(tx).Require(ctx, tenantID, appt.StartAt, appt.DurationMinutes, appt.ID); err != nil {
				return err
			}
		}
		appt.Status = next
		if err := tx.UpdateAppointment(ctx, &appt); err != nil {
			return err
		}
		out = appt
		return emit(ctx, tx, appt, outbox.AppointmentStatus)
	})
	s.observe("status", err)
	return out, err
}

// Delete removes one appointment. Nothing else is touched: a request that
// produced it keeps its appointment id for audit.
func (s *Service) Delete(ctx context.Context, tenantID, id string) error {
	if err := requireTenant(tenantID); err != nil {
		return err
	}
	err := s.store.InTenantTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		appt, err := owned(ctx, tx, tenantID, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteAppointment(ctx, appt.ID); err != nil {
			return err
		}
		return emit(ctx, tx, appt, outbox.AppointmentDeleted)
	})
	s.observe("delete", err)
	return err
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (model.Appointment, error) {
	if err := requireTenant(tenantID); err != nil {
		return model.Appointment{}, err
	}
	var out model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = owned(ctx, tx, tenantID, id)
		return err
	})
	return out, err
}

func (s *Service) List(ctx context.Context, tenantID string, f storage.AppointmentFilter) ([]model.Appointment, error) {
	if err := requireTenant(tenantID); err != nil {
		return nil, err
	}
	var out []model.Appointment
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListAppointments(ctx, tenantID, f)
		return err
	})
	return out, err
}

// CheckAvailability is the advisory check behind the booking form. The
// authoritative check happens again when the booking is written.
func (s *Service) CheckAvailability(ctx context.Context, tenantID string, start time.Time, durationMinutes int, excludeID string) (availability.Result, error) {
	if err := requireTenant(tenantID); err != nil {
		return availability.Result{}, err
	}
	var res availability.Result
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		res, err = availability.NewChecker(tx).CheckAvailability(ctx, tenantID, start, durationMinutes, excludeID)
		return err
	})
	return res, err
}

func (s *Service) durationOrDefault(d int) int {
	if d == 0 {
		return s.defaultDuration
	}
	return d
}

func (s *Service) observe(op string, err error) {
	var conflict *availability.ConflictError
	if errors.As(err, &conflict) {
		s.metrics.ObserveConflict()
	}
	s.metrics.ObserveWrite(op, err)
}

func requireTenant(tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return apperr.ErrNotAuthenticated
	}
	return nil
}

// owned loads an appointment and checks it belongs to tenantID.
func owned(ctx context.Context, tx storage.Tx, tenantID, id string) (model.Appointment, error) {
	if strings.TrimSpace(id) == "" {
		return model.Appointment{}, fmt.Errorf("%w: appointment_id is required", apperr.ErrInvalidArgument)
	}
	appt, err := tx.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.TenantID != tenantID {
		return model.Appointment{}, fmt.Errorf("%w: appointment belongs to another tenant", apperr.ErrForbidden)
	}
	return appt, nil
}

type appointmentEvent struct {
	AppointmentID   string `json:"appointment_id"`
	TenantID        string `json:"tenant_id"`
	ClientID        string `json:"client_id"`
	StartAt         string `json:"start_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	SourceRequestID string `json:"source_request_id,omitempty"`
}

func emit(ctx context.Context, tx storage.Tx, a model.Appointment, eventType string) error {
	evt, err := outbox.NewEvent(a.TenantID, "appointment", a.ID, eventType, appointmentEvent{
		AppointmentID:   a.ID,
		TenantID:        a.TenantID,
		ClientID:        a.ClientID,
		StartAt:         clock.FormatInstant(a.StartAt),
		DurationMinutes: a.DurationMinutes,
		Type:            a.Type,
		Status:          string(a.Status),
		SourceRequestID: a.SourceRequestID,
	})
	if err != nil {
		return err
	}
	return tx.AddEvent(ctx, evt)
}
