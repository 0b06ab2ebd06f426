package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/httpx"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/appointments"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/storage"
)

type availabilityResponse struct {
	Available bool              `json:"available"`
	Conflicts []appointmentItem `json:"conflicts"`
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _ := tenant(r)
	q := r.URL.Query()
	start, err := clock.ParseInstant(q.Get("start_time"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dur, err := intParam(q.Get("duration_minutes"), "duration_minutes")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if dur == 0 {
		dur = h.appts.DefaultDuration()
	}
	res, err := h.appts.CheckAvailability(r.Context(), tenantID, start, dur, strings.TrimSpace(q.Get("exclude_id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{Available: res.Available, Conflicts: toAppointmentItems(res.Conflicts)})
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _ := tenant(r)
	q := r.URL.Query()
	dur, err := intParam(q.Get("duration_minutes"), "duration_minutes")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	step, err := intParam(q.Get("slot_step_minutes"), "slot_step_minutes")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.appts.Slots(r.Context(), tenantID, appointments.SlotQuery{
		Date:            strings.TrimSpace(q.Get("date")),
		DurationMinutes: dur,
		StepMinutes:     step,
		WorkdayStart:    strings.TrimSpace(q.Get("workday_start")),
		WorkdayEnd:      strings.TrimSpace(q.Get("workday_end")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{StartTime: formatTime(s.Start), EndTime: formatTime(s.End)})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"slots": out})
}

// Appointments lists on GET and books on POST.
func (h *Handler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listAppointments(w, r)
	case http.MethodPost:
		h.book(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		httpx.WriteJSON(w, http.StatusMethodNotAllowed, httpx.ErrorBody{Error: "method not allowed", Code: "method_not_allowed"})
	}
}

func (h *Handler) listAppointments(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant(r)
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := storage.AppointmentFilter{ClientID: strings.TrimSpace(q.Get("client_id")), Limit: limit}
	if raw := q.Get("from"); raw != "" {
		if f.From, err = clock.ParseInstant(raw); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if f.To, err = clock.ParseInstant(raw); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	appts, err := h.appts.List(r.Context(), tenantID, f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": toAppointmentItems(appts)})
}

type bookRequest struct {
	ClientID        string `json:"client_id"`
	StartTime       string `json:"start_time"`
	Type            string `json:"type"`
	Notes           string `json:"notes"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *Handler) book(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := tenant(r)
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.appts.Book(r.Context(), tenantID, appointments.NewAppointment{
		ClientID:        req.ClientID,
		StartTime:       req.StartTime,
		Type:            req.Type,
		Notes:           req.Notes,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toAppointmentItem(appt))
}

type rescheduleRequest struct {
	AppointmentID   string `json:"appointment_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, _ := tenant(r)
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.appts.Reschedule(r.Context(), tenantID, req.AppointmentID, req.StartTime, req.DurationMinutes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type statusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, _ := tenant(r)
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	appt, err := h.appts.UpdateStatus(r.Context(), tenantID, req.AppointmentID, req.Status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAppointmentItem(appt))
}

type deleteRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, _ := tenant(r)
	var req deleteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.appts.Delete(r.Context(), tenantID, req.AppointmentID); err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"appointment_id": req.AppointmentID, "status": "deleted"})
}

// intParam parses an optional non-negative integer query parameter.
func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", apperr.ErrInvalidArgument, name)
	}
	return n, nil
}
