package token

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/auth/oauth"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/store"
)

// ErrNotConnected means the user never connected the provider. It is the
// normal empty state, not a fault.
var ErrNotConnected = errors.New("provider not connected")

// Refresher redeems refresh tokens.
type Refresher interface {
	CanRefresh(provider string) bool
	Refresh(ctx context.Context, provider, refreshToken string) (*oauth.Token, error)
}

// Manager hands out usable credentials and refreshes expired ones on demand.
// There is no background loop; refreshes happen inside the request that
// needs the token.
type Manager struct {
	store     store.CredentialStore
	refresher Refresher
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

// NewManager creates a new token manager.
func NewManager(s store.CredentialStore, r Refresher) *Manager {
	return &Manager{
		store:     s,
		refresher: r,
		now:       time.Now,
		locks:     make(map[string]*refLock),
	}
}

// Resolve returns a credential whose access token may be used right now.
// An expired credential is refreshed once when the provider allows it.
func (m *Manager) Resolve(ctx context.Context, userID, provider string) (*models.Credential, error) {
	cred, err := m.load(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if !cred.Expired(m.now()) {
		return cred, nil
	}
	slog.DebugContext(ctx, "credential expired, refreshing", "provider", provider)
	return m.ForceRefresh(ctx, userID, provider, cred.AccessToken)
}

// ForceRefresh replaces staleAccessToken. If a concurrent caller already
// rotated it the stored credential is returned without another refresh.
func (m *Manager) ForceRefresh(ctx context.Context, userID, provider, staleAccessToken string) (*models.Credential, error) {
	unlock := m.lock(userID, provider)
	defer unlock()

	cred, err := m.load(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if cred.AccessToken != staleAccessToken && !cred.Expired(m.now()) {
		return cred, nil
	}

	reason := apperr.CredentialRejected
	if cred.Expired(m.now()) {
		reason = apperr.CredentialExpired
	}
	if cred.RefreshToken == "" || !m.refresher.CanRefresh(provider) {
		return nil, &apperr.CredentialError{Provider: provider, Reason: reason}
	}

	tok, err := m.refresher.Refresh(ctx, provider, cred.RefreshToken)
	if err != nil {
		if oauth.IsPermanent(err) {
			slog.WarnContext(ctx, "refresh token revoked, re-authorization required", "provider", provider, "error", err)
			m.invalidate(ctx, cred)
			return nil, &apperr.CredentialError{Provider: provider, Reason: apperr.CredentialRejected, Err: err}
		}
		slog.WarnContext(ctx, "transient refresh failure", "provider", provider, "error", err)
		return nil, &apperr.UpstreamError{Provider: provider, Err: err}
	}

	cred.AccessToken = tok.AccessToken
	cred.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		cred.ExpiresAt = &exp
	}
	if tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken {
		slog.InfoContext(ctx, "rotating refresh token", "provider", provider)
		cred.RefreshToken = tok.RefreshToken
	}
	if err := m.store.Put(ctx, cred); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "refreshed credential", "provider", provider, "expires_at", cred.ExpiresAt)
	return cred, nil
}

// Usable reports whether cred can produce an access token without the user
// authorizing again.
func (m *Manager) Usable(cred *models.Credential) bool {
	if cred == nil || cred.AccessToken == "" {
		return false
	}
	if !cred.Expired(m.now()) {
		return true
	}
	return cred.RefreshToken != "" && m.refresher.CanRefresh(cred.Provider)
}

// Connected returns the ids of providers the user has a usable credential for.
func (m *Manager) Connected(ctx context.Context, userID string) ([]string, error) {
	creds, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(creds))
	for i := range creds {
		if m.Usable(&creds[i]) {
			ids = append(ids, creds[i].Provider)
		}
	}
	return ids, nil
}

func (m *Manager) load(ctx context.Context, userID, provider string) (*models.Credential, error) {
	cred, err := m.store.Get(ctx, userID, provider)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotConnected
	}
	return cred, err
}

// invalidate keeps the row but drops the dead refresh token so later reads
// report re-authorization instead of retrying the grant.
func (m *Manager) invalidate(ctx context.Context, cred *models.Credential) {
	now := m.now().UTC()
	cred.RefreshToken = ""
	if cred.ExpiresAt == nil || cred.ExpiresAt.After(now) {
		cred.ExpiresAt = &now
	}
	if err := m.store.Put(ctx, cred); err != nil {
		slog.ErrorContext(ctx, "failed to invalidate credential", "provider", cred.Provider, "error", err)
	}
}

// lock serializes refreshes of one credential. Entries are dropped once no
// caller holds or waits for them.
func (m *Manager) lock(userID, provider string) func() {
	key := userID + "\x00" + provider
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &refLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
