package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/httpx"
	"github.com/bridalos/bridalos/services/scheduling-service/internal/requests"
)

// accessExpired is the only answer an unknown, revoked or inactive portal
// token gets, so probing tokens reveals nothing.
var accessExpired = httpx.ErrorBody{Error: "this link has expired, please contact the boutique", Code: "access_expired"}

type submitRequest struct {
	Token         string `json:"token"`
	RequestedDate string `json:"requested_date"`
	RequestedTime string `json:"requested_time"`
	Type          string `json:"type"`
}

func (h *Handler) PortalSubmit(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req submitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.flow.Submit(r.Context(), requests.SubmitInput{
		Token:         req.Token,
		RequestedDate: req.RequestedDate,
		RequestedTime: req.RequestedTime,
		Type:          req.Type,
	})
	if err != nil {
		h.writePortalError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRequestItem(created))
}

type portalResponse struct {
	ClientName   string            `json:"client_name"`
	Appointments []appointmentItem `json:"appointments"`
	Requests     []requestItem     `json:"requests"`
}

func (h *Handler) PortalView(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	view, err := h.flow.ListForPortal(r.Context(), strings.TrimSpace(r.URL.Query().Get("token")))
	if err != nil {
		h.writePortalError(w, r, err)
		return
	}
	resp := portalResponse{
		ClientName:   view.Client.Name,
		Appointments: toAppointmentItems(view.Appointments),
		Requests:     make([]requestItem, 0, len(view.Requests)),
	}
	for _, req := range view.Requests {
		resp.Requests = append(resp.Requests, toRequestItem(req))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) writePortalError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		httpx.WriteJSON(w, http.StatusNotFound, accessExpired)
		return
	}
	h.writeError(w, r, err)
}
