package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/daily-nexus/internal/auth/session"
	"github.com/pysugar/daily-nexus/internal/integrations"
	"github.com/pysugar/daily-nexus/internal/logging"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
)

// queryUser resolves the userId parameter. A signed-in caller may only act
// for themselves.
func queryUser(w http.ResponseWriter, r *http.Request) (session.UserContext, *http.Request, bool) {
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "No user ID provided")
		return session.UserContext{}, r, false
	}
	if current, ok := session.FromContext(r.Context()); ok && current.UserID != userID {
		writeErrorMessage(w, http.StatusForbidden, "forbidden", "Cannot act for another user")
		return session.UserContext{}, r, false
	}
	user := session.UserContext{UserID: userID}
	return user, r.WithContext(logging.WithUserID(r.Context(), userID)), true
}

func (h *handler) window(r *http.Request) (integrations.Window, bool) {
	loc := h.DefaultLocation
	if tz := strings.TrimSpace(r.URL.Query().Get("tz")); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return integrations.Window{}, false
		}
		loc = l
	}
	return integrations.DayWindow(h.Now(), loc), true
}

func (h *handler) calendar(w http.ResponseWriter, r *http.Request) {
	h.fetchKind(w, r, catalog.KindCalendar, "An error occurred while fetching calendar events")
}

func (h *handler) notifications(w http.ResponseWriter, r *http.Request) {
	h.fetchKind(w, r, catalog.KindCodeHost, "An error occurred while fetching notifications")
}

// fetchKind answers with the raw record list; a provider the user has not
// connected answers [].
func (h *handler) fetchKind(w http.ResponseWriter, r *http.Request, kind, failure string) {
	user, r, ok := queryUser(w, r)
	if !ok {
		return
	}
	win, ok := h.window(r)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Unknown time zone")
		return
	}

	provider := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("provider")))
	if provider == "" {
		provider, ok = h.Integrations.DefaultProvider(kind)
		if !ok {
			writeErrorMessage(w, http.StatusBadRequest, "validation_error", "No "+kind+" provider is enabled")
			return
		}
	}

	res, err := h.Integrations.FetchKind(r.Context(), user, kind, provider, win)
	if err != nil {
		writeError(w, r, err, failure)
		return
	}
	records := res.Records
	if !res.Connected || records == nil {
		records = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) dashboard(w http.ResponseWriter, r *http.Request) {
	user, r, ok := queryUser(w, r)
	if !ok {
		return
	}
	win, ok := h.window(r)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Unknown time zone")
		return
	}
	writeJSON(w, http.StatusOK, h.Integrations.Dashboard(r.Context(), user, win))
}

func (h *handler) listConnections(w http.ResponseWriter, r *http.Request) {
	user, r, ok := queryUser(w, r)
	if !ok {
		return
	}
	conns, err := h.Integrations.Connections(r.Context(), user)
	if err != nil {
		writeError(w, r, err, "An error occurred while listing integrations")
		return
	}
	if conns == nil {
		conns = []integrations.Connection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"integrations": conns})
}

func (h *handler) disconnect(w http.ResponseWriter, r *http.Request) {
	user, r, ok := queryUser(w, r)
	if !ok {
		return
	}
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	if err := h.Integrations.Disconnect(r.Context(), user, provider); err != nil {
		writeError(w, r, err, "An error occurred while disconnecting the integration")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
