package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/auth/oauth"
	"github.com/pysugar/daily-nexus/internal/db/dbtest"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/store"
)

type fakeRefresher struct {
	refreshable map[string]bool
	calls       atomic.Int32
	refresh     func(provider, refreshToken string) (*oauth.Token, error)
}

func (f *fakeRefresher) CanRefresh(provider string) bool { return f.refreshable[provider] }

func (f *fakeRefresher) Refresh(_ context.Context, provider, refreshToken string) (*oauth.Token, error) {
	f.calls.Add(1)
	return f.refresh(provider, refreshToken)
}

func newTestManager(t *testing.T, r *fakeRefresher) (*Manager, store.CredentialStore) {
	t.Helper()
	s := store.NewCredentialStore(dbtest.New(t))
	m := NewManager(s, r)
	return m, s
}

func put(t *testing.T, s store.CredentialStore, cred *models.Credential) {
	t.Helper()
	if err := s.Put(context.Background(), cred); err != nil {
		t.Fatalf("put credential: %v", err)
	}
}

func TestResolve_NotConnected(t *testing.T) {
	m, _ := newTestManager(t, &fakeRefresher{})
	if _, err := m.Resolve(context.Background(), "u1", "google"); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestResolve_ValidCredentialUntouched(t *testing.T) {
	r := &fakeRefresher{refreshable: map[string]bool{"google": true}}
	m, s := newTestManager(t, r)
	exp := time.Now().Add(time.Hour)
	put(t, s, &models.Credential{UserID: "u1", Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &exp})

	cred, err := m.Resolve(context.Background(), "u1", "google")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.AccessToken != "a1" || r.calls.Load() != 0 {
		t.Fatalf("expected stored token without refresh, got %q after %d refreshes", cred.AccessToken, r.calls.Load())
	}
}

func TestResolve_RefreshesExpiredAndRotates(t *testing.T) {
	r := &fakeRefresher{
		refreshable: map[string]bool{"google": true},
		refresh: func(provider, refreshToken string) (*oauth.Token, error) {
			return &oauth.Token{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}, nil
		},
	}
	m, s := newTestManager(t, r)
	past := time.Now().Add(-time.Minute)
	put(t, s, &models.Credential{UserID: "u1", Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &past})

	cred, err := m.Resolve(context.Background(), "u1", "google")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.AccessToken != "a2" {
		t.Fatalf("expected refreshed token, got %q", cred.AccessToken)
	}

	stored, err := s.Get(context.Background(), "u1", "google")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.AccessToken != "a2" || stored.RefreshToken != "r2" || stored.Expired(time.Now()) {
		t.Fatalf("expected refreshed credential persisted, got %+v", stored)
	}
}

func TestResolve_ExpiredWithoutRefreshIsCredentialError(t *testing.T) {
	r := &fakeRefresher{refreshable: map[string]bool{}}
	m, s := newTestManager(t, r)
	past := time.Now().Add(-time.Minute)
	put(t, s, &models.Credential{UserID: "u1", Provider: "github", AccessToken: "a1", ExpiresAt: &past})

	_, err := m.Resolve(context.Background(), "u1", "github")
	var ce *apperr.CredentialError
	if !errors.As(err, &ce) || ce.Reason != apperr.CredentialExpired {
		t.Fatalf("expected expired CredentialError, got %v", err)
	}
	if r.calls.Load() != 0 {
		t.Fatal("expected no refresh attempt")
	}
}

func TestForceRefresh_PermanentFailureInvalidates(t *testing.T) {
	r := &fakeRefresher{
		refreshable: map[string]bool{"google": true},
		refresh: func(string, string) (*oauth.Token, error) {
			return nil, &oauth.TokenExchangeError{Provider: "google", StatusCode: 400, Code: "invalid_grant"}
		},
	}
	m, s := newTestManager(t, r)
	exp := time.Now().Add(time.Hour)
	put(t, s, &models.Credential{UserID: "u1", Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &exp})

	_, err := m.ForceRefresh(context.Background(), "u1", "google", "a1")
	var ce *apperr.CredentialError
	if !errors.As(err, &ce) || ce.Reason != apperr.CredentialRejected {
		t.Fatalf("expected rejected CredentialError, got %v", err)
	}

	connected, err := m.Connected(context.Background(), "u1")
	if err != nil {
		t.Fatalf("connected: %v", err)
	}
	if len(connected) != 0 {
		t.Fatalf("expected invalidated credential not usable, got %v", connected)
	}
	if _, err := m.Resolve(context.Background(), "u1", "google"); !errors.As(err, &ce) {
		t.Fatalf("expected re-authorization required after invalidation, got %v", err)
	}
	if r.calls.Load() != 1 {
		t.Fatalf("expected a single refresh attempt, got %d", r.calls.Load())
	}
}

func TestForceRefresh_TransientFailureIsUpstream(t *testing.T) {
	r := &fakeRefresher{
		refreshable: map[string]bool{"google": true},
		refresh: func(string, string) (*oauth.Token, error) {
			return nil, &oauth.TransientNetworkError{Provider: "google", Err: errors.New("connection reset")}
		},
	}
	m, s := newTestManager(t, r)
	past := time.Now().Add(-time.Minute)
	put(t, s, &models.Credential{UserID: "u1", Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &past})

	_, err := m.Resolve(context.Background(), "u1", "google")
	if apperr.KindOf(err) != apperr.KindUpstream {
		t.Fatalf("expected upstream kind, got %v", err)
	}
	stored, _ := s.Get(context.Background(), "u1", "google")
	if stored.RefreshToken != "r1" {
		t.Fatal("transient failure must keep the refresh token")
	}
}

func TestForceRefresh_ConcurrentCallersRefreshOnce(t *testing.T) {
	r := &fakeRefresher{
		refreshable: map[string]bool{"google": true},
		refresh: func(string, string) (*oauth.Token, error) {
			time.Sleep(10 * time.Millisecond)
			return &oauth.Token{AccessToken: "a2", Expiry: time.Now().Add(time.Hour)}, nil
		},
	}
	m, s := newTestManager(t, r)
	past := time.Now().Add(-time.Minute)
	put(t, s, &models.Credential{UserID: "u1", Provider: "google", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &past})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.ForceRefresh(context.Background(), "u1", "google", "a1"); err != nil {
				t.Errorf("force refresh: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := r.calls.Load(); n != 1 {
		t.Fatalf("expected exactly one refresh, got %d", n)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.locks) != 0 {
		t.Fatalf("expected refresh locks released, %d left", len(m.locks))
	}
}

func TestConnected(t *testing.T) {
	r := &fakeRefresher{refreshable: map[string]bool{"google": true}}
	m, s := newTestManager(t, r)
	past := time.Now().Add(-time.Minute)
	put(t, s, &models.Credential{UserID: "u1", Provider: "google", AccessToken: "a", RefreshToken: "r", ExpiresAt: &past})
	put(t, s, &models.Credential{UserID: "u1", Provider: "github", AccessToken: "b"})
	put(t, s, &models.Credential{UserID: "u1", Provider: "slack", AccessToken: "c", ExpiresAt: &past})
	put(t, s, &models.Credential{UserID: "u2", Provider: "gitlab", AccessToken: "d"})

	got, err := m.Connected(context.Background(), "u1")
	if err != nil {
		t.Fatalf("connected: %v", err)
	}
	if len(got) != 2 || got[0] != "github" || got[1] != "google" {
		t.Fatalf("expected [github google], got %v", got)
	}
}
