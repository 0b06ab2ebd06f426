package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bridalos/bridalos/libs/apperr"
	"github.com/bridalos/bridalos/libs/auth"
	"github.com/bridalos/bridalos/libs/httpx"
)

// FeedURL hands staff the subscribable calendar link for their tenant.
func (h *Handler) FeedURL(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID, _ := tenant(r)
	if tenantID == "" {
		h.writeError(w, r, apperr.ErrNotAuthenticated)
		return
	}
	if h.cfg.FeedSecret == "" {
		h.writeError(w, r, fmt.Errorf("%w: calendar feed is not configured", apperr.ErrNotFound))
		return
	}
	base := strings.TrimRight(h.cfg.PublicBaseURL, "/")
	link := base + "/calendar/" + url.PathEscape(tenantID) + "?key=" + url.QueryEscape(auth.FeedKey(h.cfg.FeedSecret, tenantID))
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"url": link})
}

func (h *Handler) CalendarFeed(w http.ResponseWriter, r *http.Request) {
	if !httpx.RequireMethod(w, r, http.MethodGet) {
		return
	}
	tenantID := r.PathValue("tenant_id")
	if tenantID == "" || !auth.VerifyFeedKey(h.cfg.FeedSecret, tenantID, r.URL.Query().Get("key")) {
		httpx.WriteJSON(w, http.StatusNotFound, httpx.ErrorBody{Error: "calendar not found", Code: "not_found"})
		return
	}
	body, err := h.feed.Render(r.Context(), tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="appointments.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
