package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   Kind
		status int
	}{
		{name: "validation", err: &ValidationError{Field: "prompt", Message: "required"}, kind: KindValidation, status: http.StatusBadRequest},
		{name: "credential", err: &CredentialError{Provider: "google", Reason: CredentialExpired}, kind: KindCredential, status: http.StatusUnauthorized},
		{name: "upstream", err: &UpstreamError{Provider: "github", StatusCode: 502}, kind: KindUpstream, status: http.StatusInternalServerError},
		{name: "persistence wrapped", err: fmt.Errorf("save: %w", &PersistenceError{Op: "put", Err: errors.New("disk full")}), kind: KindPersistence, status: http.StatusInternalServerError},
		{name: "plain", err: errors.New("boom"), kind: KindInternal, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Fatalf("KindOf() = %q, want %q", got, tt.kind)
			}
			if got := HTTPStatus(KindOf(tt.err)); got != tt.status {
				t.Fatalf("HTTPStatus() = %d, want %d", got, tt.status)
			}
		})
	}
}

func TestUpstreamError_MessageOmitsZeroStatus(t *testing.T) {
	err := &UpstreamError{Provider: "gemini", Err: errors.New("connection reset")}
	if got := err.Error(); got != "gemini upstream error: connection reset" {
		t.Fatalf("unexpected message %q", got)
	}
}
