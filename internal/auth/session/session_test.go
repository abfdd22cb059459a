package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSessionRoundTrip(t *testing.T) {
	iss := NewIssuer("0123456789abcdef", time.Hour)

	tok, err := iss.IssueSession("user-42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	u, err := iss.ParseSession(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.UserID != "user-42" {
		t.Fatalf("unexpected user %q", u.UserID)
	}

	if _, err := NewIssuer("another-secret-value", time.Hour).ParseSession(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}
}

func TestStateBoundToProviderAndExpires(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer("0123456789abcdef", time.Hour)
	iss.now = func() time.Time { return now }

	state, err := iss.IssueState("user-42", "github")
	if err != nil {
		t.Fatalf("issue state: %v", err)
	}

	if _, err := iss.ParseState(state, "google"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected state rejected for another provider, got %v", err)
	}
	if _, err := iss.ParseSession(state); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected state rejected as session, got %v", err)
	}
	if u, err := iss.ParseState(state, "github"); err != nil || u.UserID != "user-42" {
		t.Fatalf("expected valid state, got %+v %v", u, err)
	}

	now = now.Add(StateTTL + time.Second)
	if _, err := iss.ParseState(state, "github"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired state rejected, got %v", err)
	}
}

func TestUserContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no user on empty context")
	}
	if _, ok := FromContext(WithUser(context.Background(), UserContext{UserID: " "})); ok {
		t.Fatal("expected blank user rejected")
	}
	u, ok := FromContext(WithUser(context.Background(), UserContext{UserID: "u1"}))
	if !ok || u.UserID != "u1" {
		t.Fatalf("unexpected user %+v", u)
	}
}
