package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGetJSON_SendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected Authorization %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("expected Accept override, got %q", got)
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "daily-nexus/") {
			t.Errorf("unexpected User-Agent %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"1"},{"id":"2"}]`))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Accept", "application/vnd.github+json")

	var out []map[string]string
	if err := NewClient(nil).GetJSON(context.Background(), srv.URL, "tok", header, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if len(out) != 2 || out[1]["id"] != "2" {
		t.Fatalf("unexpected decode %+v", out)
	}
}

func TestGetJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"slow down"}`))
	}))
	defer srv.Close()

	var out any
	err := NewClient(nil).GetJSON(context.Background(), srv.URL, "tok", nil, &out)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusTooManyRequests || se.RetryAfter != 7*time.Second {
		t.Fatalf("unexpected status error %+v", se)
	}
	if se.Unauthorized() {
		t.Fatal("429 is not an authorization failure")
	}
	if !strings.Contains(string(se.Body), "slow down") {
		t.Fatalf("expected body retained for logging, got %q", se.Body)
	}
	if strings.Contains(se.Error(), "slow down") {
		t.Fatal("error message must not carry the provider body")
	}
}

func TestGetJSON_HonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var out any
	if err := NewClient(nil).GetJSON(ctx, srv.URL, "tok", nil, &out); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
