package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"github.com/pysugar/daily-nexus/internal/upstream"
)

// MaxCalendarEvents caps the events returned for one window.
const MaxCalendarEvents = 10

// CalendarFetcher lists primary-calendar events from the Google Calendar API.
type CalendarFetcher struct {
	provider string
	baseURL  string
	header   http.Header
	client   *upstream.Client
}

func NewCalendarFetcher(p catalog.Provider, client *upstream.Client) *CalendarFetcher {
	return &CalendarFetcher{
		provider: p.ID,
		baseURL:  strings.TrimRight(p.APIBaseURL, "/"),
		header:   staticHeader(p.StaticHeaders),
		client:   client,
	}
}

func (f *CalendarFetcher) Provider() string { return f.provider }

func (f *CalendarFetcher) Kind() string { return catalog.KindCalendar }

// Fetch returns single (expanded) events in [w.Start, w.End] ordered by start.
func (f *CalendarFetcher) Fetch(ctx context.Context, cred *models.Credential, w Window) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("timeMin", w.Start.Format(time.RFC3339))
	q.Set("timeMax", w.End.Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", strconv.Itoa(MaxCalendarEvents))
	if w.Location != nil {
		q.Set("timeZone", w.Location.String())
	}

	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	endpoint := f.baseURL + "/calendars/primary/events?" + q.Encode()
	if err := f.client.GetJSON(ctx, endpoint, cred.AccessToken, f.header, &page); err != nil {
		return nil, err
	}

	events := page.Items
	if len(events) > MaxCalendarEvents {
		events = events[:MaxCalendarEvents]
	}
	if events == nil {
		events = []json.RawMessage{}
	}
	return events, nil
}

func staticHeader(headers map[string]string) http.Header {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return h
}
