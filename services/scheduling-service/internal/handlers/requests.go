package handlers

import (
	"net/http"
	"strings"

	"github.com/bridalos/bridalos/libs/clock"
	"github.com/bridalos/bridalos/libs/httpx"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/requests"
)

func (h *Handler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _ := tenant(r)
	pending, err := h.flow.ListPending(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]requestItem, 0, len(pending))
	for _, p := range pending {
		item := toRequestItem(p.AppointmentRequest)
		item.ClientName = p.ClientName
		item.ClientEmail = p.ClientEmail
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

type approveRequest struct {
	RequestID       string `json:"request_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
}

type approveResponse struct {
	Request     requestItem     `json:"request"`
	Appointment appointmentItem `json:"appointment"`
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, actorID := tenant(r)
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	opts := requests.ApproveOptions{DurationMinutes: req.DurationMinutes, ActorID: actorID}
	if raw := strings.TrimSpace(req.StartTime); raw != "" {
		start, err := clock.ParseInstant(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		opts.StartAt = &start
	}
	decided, appt, err := h.flow.Approve(r.Context(), tenantID, req.RequestID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, approveResponse{Request: toRequestItem(decided), Appointment: toAppointmentItem(appt)})
}

type rejectRequest struct {
	RequestID string `json:"request_id"`
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	tenantID, actorID := tenant(r)
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	decided, err := h.flow.Reject(r.Context(), tenantID, req.RequestID, actorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRequestItem(decided))
}
