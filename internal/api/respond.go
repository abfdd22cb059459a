package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pysugar/daily-nexus/internal/apperr"
)

// CodeReauthRequired tells clients to send the user through OAuth again.
const CodeReauthRequired = "reauth_required"

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorMessage(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

// writeError maps err onto the JSON envelope. Validation messages are shown
// as-is; anything else gets the generic fallback so upstream bodies and
// internals never reach the client.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	switch kind {
	case apperr.KindValidation:
		var ve *apperr.ValidationError
		msg := err.Error()
		if errors.As(err, &ve) {
			msg = ve.Message
		}
		writeErrorMessage(w, status, string(kind), msg)
		return
	case apperr.KindCredential:
		slog.InfoContext(r.Context(), "credential needs re-authorization", "error", err)
		writeErrorMessage(w, status, CodeReauthRequired, "Re-authorization required")
		return
	}

	if errors.Is(err, context.Canceled) {
		slog.DebugContext(r.Context(), "request canceled", "path", r.URL.Path)
	} else {
		slog.ErrorContext(r.Context(), fallback, "kind", kind, "error", err)
	}
	writeErrorMessage(w, status, string(kind), fallback)
}
