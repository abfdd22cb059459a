// Package integrations reads live data from connected providers on demand.
// Nothing fetched here is cached or persisted.
package integrations

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pysugar/daily-nexus/internal/db/models"
)

// Fetcher reads provider records with an already usable credential. A
// rejected token is reported as *upstream.StatusError so the service can
// refresh and retry.
type Fetcher interface {
	Provider() string
	Kind() string
	Fetch(ctx context.Context, cred *models.Credential, w Window) ([]json.RawMessage, error)
}

// Window bounds time-based queries.
type Window struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// DayWindow spans from now to the last instant of the same day in loc.
func DayWindow(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	start := now.In(loc)
	y, m, d := start.Date()
	end := time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	return Window{Start: start, End: end, Location: loc}
}

// Result of a single provider fetch. Connected=false is the normal state for
// a provider the user never authorized and always carries no records.
type Result struct {
	Provider  string            `json:"provider"`
	Connected bool              `json:"connected"`
	Records   []json.RawMessage `json:"records"`
}
