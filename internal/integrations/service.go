package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/auth/session"
	"github.com/pysugar/daily-nexus/internal/auth/token"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/metrics"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"github.com/pysugar/daily-nexus/internal/store"
	"github.com/pysugar/daily-nexus/internal/upstream"
	"github.com/pysugar/daily-nexus/internal/util"
)

// Credentials is the part of the token manager the service needs.
type Credentials interface {
	Resolve(ctx context.Context, userID, provider string) (*models.Credential, error)
	ForceRefresh(ctx context.Context, userID, provider, staleAccessToken string) (*models.Credential, error)
	Usable(cred *models.Credential) bool
}

// Service dispatches fetches to the fetcher registered for a provider id.
type Service struct {
	catalog  *catalog.Catalog
	tokens   Credentials
	creds    store.CredentialStore
	fetchers map[string]Fetcher
}

// NewService registers fetchers. Fetchers for disabled providers are ignored.
func NewService(c *catalog.Catalog, tokens Credentials, creds store.CredentialStore, fetchers ...Fetcher) *Service {
	s := &Service{
		catalog:  c,
		tokens:   tokens,
		creds:    creds,
		fetchers: make(map[string]Fetcher, len(fetchers)),
	}
	for _, f := range fetchers {
		if _, ok := c.Enabled(f.Provider()); ok {
			s.fetchers[f.Provider()] = f
		}
	}
	return s
}

// DefaultProvider returns the first enabled provider of kind with a fetcher.
func (s *Service) DefaultProvider(kind string) (string, bool) {
	for _, p := range s.catalog.ByKind(kind) {
		if _, ok := s.fetchers[p.ID]; ok {
			return p.ID, true
		}
	}
	return "", false
}

// Fetch reads provider records for the user. A provider the user never
// connected yields Connected=false and no error.
func (s *Service) Fetch(ctx context.Context, user session.UserContext, provider string, w Window) (*Result, error) {
	f, ok := s.fetchers[provider]
	if !ok {
		return nil, &apperr.ValidationError{Field: "provider", Message: "no data source for provider " + provider}
	}

	res, err := s.fetch(ctx, user.UserID, f, w)
	metrics.ObserveProviderFetch(provider, outcomeOf(res, err))
	return res, err
}

// FetchKind is Fetch for an endpoint that serves one kind of data. A provider
// of another kind is a validation error.
func (s *Service) FetchKind(ctx context.Context, user session.UserContext, kind, provider string, w Window) (*Result, error) {
	if f, ok := s.fetchers[provider]; ok && f.Kind() != kind {
		return nil, &apperr.ValidationError{Field: "provider", Message: provider + " is not a " + kind + " provider"}
	}
	return s.Fetch(ctx, user, provider, w)
}

func (s *Service) fetch(ctx context.Context, userID string, f Fetcher, w Window) (*Result, error) {
	provider := f.Provider()

	cred, err := s.tokens.Resolve(ctx, userID, provider)
	if errors.Is(err, token.ErrNotConnected) {
		return &Result{Provider: provider, Connected: false, Records: []json.RawMessage{}}, nil
	}
	if err != nil {
		return nil, err
	}

	records, err := f.Fetch(ctx, cred, w)
	var se *upstream.StatusError
	if errors.As(err, &se) && se.Unauthorized() {
		slog.InfoContext(ctx, "provider rejected token, refreshing once", "provider", provider, "status", se.StatusCode)
		metrics.ObserveTokenRefresh(provider)
		cred, err = s.tokens.ForceRefresh(ctx, userID, provider, cred.AccessToken)
		if err != nil {
			return nil, err
		}
		records, err = f.Fetch(ctx, cred, w)
		if errors.As(err, &se) && se.Unauthorized() {
			return nil, &apperr.CredentialError{Provider: provider, Reason: apperr.CredentialRejected, Err: err}
		}
	}
	if err != nil {
		return nil, s.upstreamError(ctx, provider, err)
	}
	return &Result{Provider: provider, Connected: true, Records: records}, nil
}

func (s *Service) upstreamError(ctx context.Context, provider string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *upstream.StatusError
	if errors.As(err, &se) {
		slog.WarnContext(ctx, "provider request failed",
			"provider", provider,
			"status", se.StatusCode,
			"retry_after", se.RetryAfter,
			"body", util.TruncateBytes(se.Body),
		)
		return &apperr.UpstreamError{Provider: provider, StatusCode: se.StatusCode, Err: err}
	}
	slog.WarnContext(ctx, "provider request failed", "provider", provider, "error", err)
	return &apperr.UpstreamError{Provider: provider, Err: err}
}

// Connection is the connection status of one provider for one user.
type Connection struct {
	Provider    string     `json:"provider"`
	Kind        string     `json:"kind"`
	Connected   bool       `json:"connected"`
	NeedsReauth bool       `json:"needs_reauth"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// Connections lists every enabled OAuth provider with the user's status.
// Stored credentials are the only source of truth.
func (s *Service) Connections(ctx context.Context, user session.UserContext) ([]Connection, error) {
	creds, err := s.creds.ListByUser(ctx, user.UserID)
	if err != nil {
		return nil, err
	}
	byProvider := make(map[string]*models.Credential, len(creds))
	for i := range creds {
		byProvider[creds[i].Provider] = &creds[i]
	}

	var out []Connection
	for _, p := range s.catalog.Providers() {
		if !p.Enabled || !p.SupportsOAuth() {
			continue
		}
		c := Connection{Provider: p.ID, Kind: p.Kind}
		if cred, ok := byProvider[p.ID]; ok {
			c.Connected = s.tokens.Usable(cred)
			c.NeedsReauth = !c.Connected
			c.ExpiresAt = cred.ExpiresAt
			created := cred.CreatedAt
			c.ConnectedAt = &created
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

// Disconnect deletes the user's credential for provider. Disconnecting a
// provider that is not connected succeeds.
func (s *Service) Disconnect(ctx context.Context, user session.UserContext, provider string) error {
	if _, ok := s.catalog.Get(provider); !ok {
		return &apperr.ValidationError{Field: "provider", Message: "unknown provider " + provider}
	}
	err := s.creds.Delete(ctx, user.UserID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err == nil {
		slog.InfoContext(ctx, "provider disconnected", "provider", provider)
	}
	return err
}

func outcomeOf(res *Result, err error) string {
	switch {
	case err == nil && res != nil && !res.Connected:
		return metrics.OutcomeNotConnected
	case err == nil:
		return metrics.OutcomeOK
	case apperr.KindOf(err) == apperr.KindCredential:
		return metrics.OutcomeReauth
	default:
		return metrics.OutcomeError
	}
}

// statusFor maps a fetch failure to the section status shown on the dashboard.
func statusFor(err error) string {
	if apperr.KindOf(err) == apperr.KindCredential {
		return SectionNeedsReauth
	}
	return SectionUnavailable
}
