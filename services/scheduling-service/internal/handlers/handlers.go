// Package handlers exposes the scheduling core over HTTP: staff routes behind
// a bearer token, and the token-addressed client portal.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/auth"
	"github.com/bridalos/bridalos/libs/httpx"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/appointments"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/availability"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/calendar"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/model"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/requests"
)

type Config struct {
	// FeedSecret signs calendar feed URLs. Empty disables the feed.
	FeedSecret    string
	PublicBaseURL string
}

type Handler struct {
	appts  *appointments.Service
	flow   *requests.Workflow
	feed   *calendar.Feed
	logger *slog.Logger
	cfg    Config
}

func New(appts *appointments.Service, flow *requests.Workflow, feed *calendar.Feed, logger *slog.Logger, cfg Config) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{appts: appts, flow: flow, feed: feed, logger: logger, cfg: cfg}
}

// Register mounts every route on mux. staff guards the dashboard routes and
// public guards the portal and feed routes (rate limiting).
func (h *Handler) Register(mux *http.ServeMux, staff, public httpx.Middleware) {
	if staff == nil {
		staff = passthrough
	}
	if public == nil {
		public = passthrough
	}
	handle := func(pattern string, mw httpx.Middleware, fn http.HandlerFunc) {
		mux.Handle(pattern, mw(fn))
	}

	handle("/api/v1/availability", staff, h.Availability)
	handle("/api/v1/availability/slots", staff, h.Slots)
	handle("/api/v1/appointments", staff, h.Appointments)
	handle("/api/v1/appointments/reschedule", staff, h.Reschedule)
	handle("/api/v1/appointments/status", staff, h.UpdateStatus)
	handle("/api/v1/appointments/delete", staff, h.Delete)
	handle("/api/v1/requests", staff, h.PendingRequests)
	handle("/api/v1/requests/approve", staff, h.Approve)
	handle("/api/v1/requests/reject", staff, h.Reject)
	handle("/api/v1/calendar/feed", staff, h.FeedURL)

	handle("/api/v1/portal/requests", public, h.PortalSubmit)
	handle("/api/v1/portal/appointments", public, h.PortalView)
	handle("/calendar/{tenant_id}", public, h.CalendarFeed)
}

func passthrough(next http.Handler) http.Handler { return next }

// tenant resolves the caller's tenant from the verified claims. An empty
// result is rejected downstream as not authenticated.
func tenant(r *http.Request) (tenantID, actorID string) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		return "", ""
	}
	return claims.TenantID(), claims.Sub
}

type conflictBody struct {
	Error     string            `json:"error"`
	Code      string            `json:"code"`
	Conflicts []appointmentItem `json:"conflicts"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *availability.ConflictError
	if errors.As(err, &conflict) {
		body := conflictBody{Error: "Conflict Detected", Code: apperr.Code(err)}
		for _, a := range conflict.Conflicts {
			body.Conflicts = append(body.Conflicts, toAppointmentItem(a))
		}
		httpx.WriteJSON(w, http.StatusConflict, body)
		return
	}
	if apperr.HTTPStatus(err) == http.StatusInternalServerError {
		h.logger.Error("request failed", "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()), "err", err)
	}
	httpx.WriteError(w, err)
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	ClientID        string `json:"client_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Type            string `json:"type"`
	Notes           string `json:"notes,omitempty"`
	Status          string `json:"status"`
	ReminderSent    bool   `json:"reminder_sent"`
	SourceRequestID string `json:"source_request_id,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

func toAppointmentItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID:   a.ID,
		ClientID:        a.ClientID,
		StartTime:       formatTime(a.StartAt),
		EndTime:         formatTime(a.End()),
		DurationMinutes: a.DurationMinutes,
		Type:            a.Type,
		Notes:           a.Notes,
		Status:          string(a.Status),
		ReminderSent:    a.ReminderSent,
		SourceRequestID: a.SourceRequestID,
		CreatedAt:       formatTime(a.CreatedAt),
	}
}

func toAppointmentItems(appts []model.Appointment) []appointmentItem {
	out := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		out = append(out, toAppointmentItem(a))
	}
	return out
}

type requestItem struct {
	RequestID     string `json:"request_id"`
	ClientID      string `json:"client_id"`
	ClientName    string `json:"client_name,omitempty"`
	ClientEmail   string `json:"client_email,omitempty"`
	RequestedDate string `json:"requested_date"`
	RequestedTime string `json:"requested_time"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	AppointmentID string `json:"appointment_id,omitempty"`
	DecidedAt     string `json:"decided_at,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func toRequestItem(r model.AppointmentRequest) requestItem {
	item := requestItem{
		RequestID:     r.ID,
		ClientID:      r.ClientID,
		RequestedDate: r.RequestedDate,
		RequestedTime: r.RequestedTime,
		Type:          r.Type,
		Status:        string(r.Status),
		AppointmentID: r.AppointmentID,
		CreatedAt:     formatTime(r.CreatedAt),
	}
	if r.DecidedAt != nil {
		item.DecidedAt = formatTime(*r.DecidedAt)
	}
	return item
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
