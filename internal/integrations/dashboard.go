package integrations

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pysugar/daily-nexus/internal/auth/session"
)

// Section statuses.
const (
	SectionOK           = "ok"
	SectionNotConnected = "not_connected"
	SectionNeedsReauth  = "needs_reauth"
	SectionUnavailable  = "unavailable"
)

// Section is one provider's slice of the dashboard.
type Section struct {
	Provider string            `json:"provider"`
	Kind     string            `json:"kind"`
	Status   string            `json:"status"`
	Records  []json.RawMessage `json:"records"`
}

// Dashboard is the combined view for one load.
type Dashboard struct {
	GeneratedAt time.Time `json:"generated_at"`
	Sections    []Section `json:"sections"`
}

// Dashboard fetches every registered provider concurrently. Each section
// carries its own status, so one failing provider never hides another.
func (s *Service) Dashboard(ctx context.Context, user session.UserContext, w Window) *Dashboard {
	var fetchers []Fetcher
	for _, p := range s.catalog.Providers() {
		if f, ok := s.fetchers[p.ID]; ok {
			fetchers = append(fetchers, f)
		}
	}

	sections := make([]Section, len(fetchers))
	var wg sync.WaitGroup
	for i, f := range fetchers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sections[i] = s.section(ctx, user, f, w)
		}()
	}
	wg.Wait()

	return &Dashboard{GeneratedAt: w.Start, Sections: sections}
}

func (s *Service) section(ctx context.Context, user session.UserContext, f Fetcher, w Window) Section {
	sec := Section{Provider: f.Provider(), Kind: f.Kind(), Records: []json.RawMessage{}}

	res, err := s.Fetch(ctx, user, f.Provider(), w)
	switch {
	case err != nil:
		sec.Status = statusFor(err)
	case !res.Connected:
		sec.Status = SectionNotConnected
	default:
		sec.Status = SectionOK
		sec.Records = res.Records
	}
	return sec
}
