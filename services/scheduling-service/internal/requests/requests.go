// Package requests implements the appointment request workflow: clients
// propose a date through the portal, staff approve or reject it.
//
//	Pending --approve--> Approved (creates exactly one Appointment)
//	Pending --reject---> Rejected
//
// Approved and Rejected are terminal.
package requests

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/outbox"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/appointments"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/metrics"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

type Workflow struct {
	store           storage.Store
	clock           clock.Clock
	metrics         *metrics.Metrics
	defaultDuration int
}

func NewWorkflow(store storage.Store, clk clock.Clock, m *metrics.Metrics, defaultDuration int) *Workflow {
	if clk == nil {
		clk = clock.Real{}
	}
	if defaultDuration <= 0 {
		defaultDuration = model.DefaultDurationMinutes
	}
	return &Workflow{store: store, clock: clk, metrics: m, defaultDuration: defaultDuration}
}

type SubmitInput struct {
	Token         string
	RequestedDate string
	RequestedTime string
	Type          string
}

// Submit records a Pending request for the client holding Token. No
// availability check is made; staff review every request.
//
// The token is resolved before the body is validated so an unknown or
// revoked link always answers access_expired.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (model.AppointmentRequest, error) {
	date := strings.TrimSpace(in.RequestedDate)
	typ := strings.TrimSpace(in.Type)
	pref := strings.TrimSpace(in.RequestedTime)

	var out model.AppointmentRequest
	err := w.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		client, err := tx.GetClientByPortalToken(ctx, strings.TrimSpace(in.Token))
		if err != nil {
			return err
		}
		if _, err := clock.ParseInstant(date); err != nil {
			return err
		}
		if typ == "" {
			return fmt.Errorf("%w: type is required", apperr.ErrInvalidArgument)
		}
		if pref == "" {
			return fmt.Errorf("%w: requested_time is required", apperr.ErrInvalidArgument)
		}
		req := model.AppointmentRequest{
			TenantID:      client.TenantID,
			ClientID:      client.ID,
			RequestedDate: date,
			RequestedTime: pref,
			Type:          typ,
			Status:        model.RequestPending,
		}
		if err := tx.InsertRequest(ctx, &req); err != nil {
			return err
		}
		out = req
		return emit(ctx, tx, req, outbox.RequestSubmitted)
	})
	if err != nil {
		return model.AppointmentRequest{}, err
	}
	w.metrics.ObserveTransition(string(model.RequestPending))
	return out, nil
}

// ApproveOptions lets staff pin the exact start when approving. With StartAt
// set the slot must be free; otherwise the appointment starts at the
// requested date (UTC midnight for date-only values) and carries the coarse
// time preference in its notes for staff to refine.
type ApproveOptions struct {
	StartAt         *time.Time
	DurationMinutes int
	ActorID         string
}

func (w *Workflow) Approve(ctx context.Context, tenantID, requestID string, opts ApproveOptions) (model.AppointmentRequest, model.Appointment, error) {
	var (
		outReq  model.AppointmentRequest
		outAppt model.Appointment
	)
	err := w.decide(ctx, tenantID, requestID, func(ctx context.Context, tx storage.Tx, req *model.AppointmentRequest) error {
		start, err := clock.ParseInstant(req.RequestedDate)
		if err != nil {
			return err
		}
		check := false
		if opts.StartAt != nil {
			start, check = opts.StartAt.UTC(), true
		}
		duration := w.defaultDuration
		if opts.DurationMinutes != 0 {
			duration = opts.DurationMinutes
		}
		if duration <= 0 || duration > model.MaxDurationMinutes {
			return fmt.Errorf("%w: invalid duration_minutes", apperr.ErrInvalidArgument)
		}

		appt := model.Appointment{
			TenantID:        req.TenantID,
			ClientID:        req.ClientID,
			StartAt:         start,
			DurationMinutes: duration,
			Type:            req.Type,
			Notes:           "Requested time: " + req.RequestedTime,
			Status:          model.StatusScheduled,
			SourceRequestID: req.ID,
		}
		if err := appointments.Create(ctx, tx, &appt, check); err != nil {
			return err
		}

		now := w.clock.Now()
		req.Status = model.RequestApproved
		req.AppointmentID = appt.ID
		req.DecidedBy = opts.ActorID
		req.DecidedAt = &now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}
		outReq, outAppt = *req, appt
		return emit(ctx, tx, *req, outbox.RequestApproved)
	})
	if err != nil {
		return model.AppointmentRequest{}, model.Appointment{}, err
	}
	w.metrics.ObserveTransition(string(model.RequestApproved))
	return outReq, outAppt, nil
}

func (w *Workflow) Reject(ctx context.Context, tenantID, requestID, actorID string) (model.AppointmentRequest, error) {
	var out model.AppointmentRequest
	err := w.decide(ctx, tenantID, requestID, func(ctx context.Context, tx storage.Tx, req *model.AppointmentRequest) error {
		now := w.clock.Now()
		req.Status = model.RequestRejected
		req.DecidedBy = actorID
		req.DecidedAt = &now
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}
		out = *req
		return emit(ctx, tx, *req, outbox.RequestRejected)
	})
	if err != nil {
		return model.AppointmentRequest{}, err
	}
	w.metrics.ObserveTransition(string(model.RequestRejected))
	return out, nil
}

// decide runs the guards shared by approve and reject in order: not found,
// wrong tenant, already decided. fn only sees Pending requests of tenantID.
func (w *Workflow) decide(ctx context.Context, tenantID, requestID string, fn func(context.Context, storage.Tx, *model.AppointmentRequest) error) error {
	if strings.TrimSpace(tenantID) == "" {
		return apperr.ErrNotAuthenticated
	}
	if strings.TrimSpace(requestID) == "" {
		return fmt.Errorf("%w: request_id is required", apperr.ErrInvalidArgument)
	}
	return w.store.InTenantTx(ctx, tenantID, func(ctx context.Context, tx storage.Tx) error {
		req, err := tx.GetRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.TenantID != tenantID {
			return fmt.Errorf("%w: request belongs to another tenant", apperr.ErrForbidden)
		}
		if req.Status.Terminal() {
			return fmt.Errorf("%w: request is already %s", apperr.ErrInvalidState, req.Status)
		}
		return fn(ctx, tx, &req)
	})
}

// ListPending returns the tenant's Pending requests with the requesting
// client's name and email for the dashboard.
func (w *Workflow) ListPending(ctx context.Context, tenantID string) ([]model.PendingRequest, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, apperr.ErrNotAuthenticated
	}
	var out []model.PendingRequest
	err := w.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		reqs, err := tx.ListRequests(ctx, tenantID, storage.RequestFilter{Status: model.RequestPending})
		if err != nil {
			return err
		}
		clients := map[string]model.Client{}
		for _, r := range reqs {
			c, ok := clients[r.ClientID]
			if !ok {
				c, err = tx.GetClient(ctx, r.ClientID)
				if err != nil && !errors.Is(err, apperr.ErrNotFound) {
					return err
				}
				if c.Name == "" {
					c.Name = "Unknown"
				}
				clients[r.ClientID] = c
			}
			out = append(out, model.PendingRequest{AppointmentRequest: r, ClientName: c.Name, ClientEmail: c.Email})
		}
		return nil
	})
	return out, err
}

// PortalView is everything a client sees in the portal.
type PortalView struct {
	Client       model.Client
	Appointments []model.Appointment
	Requests     []model.AppointmentRequest
}

// ListForPortal resolves token to its client and returns that client's own
// appointments and requests. Unknown tokens fail with apperr.ErrNotFound.
func (w *Workflow) ListForPortal(ctx context.Context, token string) (PortalView, error) {
	var view PortalView
	err := w.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		client, err := tx.GetClientByPortalToken(ctx, strings.TrimSpace(token))
		if err != nil {
			return err
		}
		view.Client = client
		view.Appointments, err = tx.ListAppointments(ctx, client.TenantID, storage.AppointmentFilter{ClientID: client.ID})
		if err != nil {
			return err
		}
		view.Requests, err = tx.ListRequests(ctx, client.TenantID, storage.RequestFilter{ClientID: client.ID})
		return err
	})
	return view, err
}

type requestEvent struct {
	RequestID     string `json:"request_id"`
	TenantID      string `json:"tenant_id"`
	ClientID      string `json:"client_id"`
	RequestedDate string `json:"requested_date"`
	RequestedTime string `json:"requested_time"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	AppointmentID string `json:"appointment_id,omitempty"`
	DecidedBy     string `json:"decided_by,omitempty"`
}

func emit(ctx context.Context, tx storage.Tx, r model.AppointmentRequest, eventType string) error {
	evt, err := outbox.NewEvent(r.TenantID, "appointment_request", r.ID, eventType, requestEvent{
		RequestID:     r.ID,
		TenantID:      r.TenantID,
		ClientID:      r.ClientID,
		RequestedDate: r.RequestedDate,
		RequestedTime: r.RequestedTime,
		Type:          r.Type,
		Status:        string(r.Status),
		AppointmentID: r.AppointmentID,
		DecidedBy:     r.DecidedBy,
	})
	if err != nil {
		return err
	}
	return tx.AddEvent(ctx, evt)
}
