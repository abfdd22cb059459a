package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/daily-nexus/internal/auth/session"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/logging"
	"github.com/pysugar/daily-nexus/internal/metrics"
)

// oauthCallback redeems the authorization code and stores the credential.
// The user comes from the signed state, else from the session.
func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	code := strings.TrimSpace(r.FormValue("code"))

	if code == "" {
		if denied := r.FormValue("error"); denied != "" {
			slog.InfoContext(r.Context(), "oauth consent not granted", "provider", provider, "reason", denied)
		}
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "No code provided")
		return
	}
	if !h.OAuth.Supports(provider) {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Unsupported provider")
		return
	}

	user, ok := h.callbackUser(r, provider)
	if !ok {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Unknown user")
		return
	}
	ctx := logging.WithUserID(r.Context(), user.UserID)

	tok, err := h.OAuth.Exchange(ctx, provider, code)
	if err != nil {
		metrics.ObserveOAuthExchange(provider, metrics.OutcomeError)
		slog.ErrorContext(ctx, "oauth exchange failed", "provider", provider, "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "upstream_error", "An error occurred during the OAuth flow")
		return
	}

	cred := &models.Credential{
		UserID:       user.UserID,
		Provider:     provider,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       tok.Scope,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		cred.ExpiresAt = &exp
	}
	if err := h.Credentials.Put(ctx, cred); err != nil {
		metrics.ObserveOAuthExchange(provider, metrics.OutcomeError)
		slog.ErrorContext(ctx, "failed to store credential", "provider", provider, "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "persistence_error", "An error occurred during the OAuth flow")
		return
	}

	metrics.ObserveOAuthExchange(provider, metrics.OutcomeOK)
	slog.InfoContext(ctx, "provider connected", "provider", provider, "expires_at", cred.ExpiresAt)
	http.Redirect(w, r, h.integrationsRedirect(provider), http.StatusFound)
}

// oauthStart sends the signed-in user to the provider's consent page.
func (h *handler) oauthStart(w http.ResponseWriter, r *http.Request) {
	provider := strings.ToLower(chi.URLParam(r, "provider"))
	user, ok := session.FromContext(r.Context())
	if !ok {
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", "Sign in required")
		return
	}
	if !h.OAuth.Supports(provider) {
		writeErrorMessage(w, http.StatusBadRequest, "validation_error", "Unsupported provider")
		return
	}

	state, err := h.Sessions.IssueState(user.UserID, provider)
	if err != nil {
		writeError(w, r, err, "Failed to start OAuth flow")
		return
	}
	target, err := h.OAuth.AuthCodeURL(provider, state)
	if err != nil {
		writeError(w, r, err, "Failed to start OAuth flow")
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *handler) callbackUser(r *http.Request, provider string) (session.UserContext, bool) {
	if state := r.FormValue("state"); state != "" {
		user, err := h.Sessions.ParseState(state, provider)
		if err != nil {
			slog.WarnContext(r.Context(), "rejected oauth state", "provider", provider, "error", err)
			return session.UserContext{}, false
		}
		return user, true
	}
	return session.FromContext(r.Context())
}

func (h *handler) integrationsRedirect(provider string) string {
	u, err := url.Parse(h.IntegrationsURL)
	if err != nil {
		return h.IntegrationsURL
	}
	q := u.Query()
	q.Set("connected", provider)
	u.RawQuery = q.Encode()
	return u.String()
}
