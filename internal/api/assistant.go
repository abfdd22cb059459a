package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/daily-nexus/internal/assistant"
	"github.com/pysugar/daily-nexus/internal/auth/session"
)

type turnRequest struct {
	Prompt    string          `json:"prompt"`
	Context   json.RawMessage `json:"context,omitempty"`
	SessionID string          `json:"sessionId,omitempty" validate:"omitempty,max=128,printascii"`
}

func (h *handler) assistantTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	// A missing prompt is a 400 whoever is asking.
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, r, assistant.ErrEmptyPrompt, "No prompt provided")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Invalid session id")
		return
	}

	user, ok := session.FromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "Sign in required")
		return
	}

	if string(req.Context) == "null" {
		req.Context = nil
	}

	out, err := h.Assistant.HandleTurn(r.Context(), assistant.TurnInput{
		User:          user,
		SessionID:     req.SessionID,
		Prompt:        req.Prompt,
		ClientContext: req.Context,
	})
	if err != nil {
		writeError(w, r, err, "An error occurred while generating the AI response")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) assistantHistory(w http.ResponseWriter, r *http.Request) {
	user, ok := session.FromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "Sign in required")
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	turns, err := h.Assistant.History(r.Context(), user, sessionID)
	if err != nil {
		writeError(w, r, err, "An error occurred while loading the conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "turns": turns})
}
