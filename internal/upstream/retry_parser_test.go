package upstream

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRetryDelay(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		body   string
		want   time.Duration
	}{
		{name: "seconds header", header: http.Header{"Retry-After": {"3"}}, want: 3 * time.Second},
		{name: "google body", body: `{"error":{"code":429,"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"1.5s"}]}}`, want: 1500 * time.Millisecond},
		{name: "metadata", body: `{"error":{"details":[{"metadata":{"retryDelay":"2s"}}]}}`, want: 2 * time.Second},
		{name: "nothing", body: `not json`, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			if got := ParseRetryDelay(header, []byte(tt.body)); got != tt.want {
				t.Fatalf("ParseRetryDelay() = %s, want %s", got, tt.want)
			}
		})
	}
}
