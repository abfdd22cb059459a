package integrations

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"github.com/pysugar/daily-nexus/internal/upstream"
)

// GitHubNotificationsFetcher returns the raw GitHub notifications feed,
// unfiltered and in the order GitHub sends it.
type GitHubNotificationsFetcher struct {
	provider string
	baseURL  string
	header   http.Header
	client   *upstream.Client
}

func NewGitHubNotificationsFetcher(p catalog.Provider, client *upstream.Client) *GitHubNotificationsFetcher {
	header := staticHeader(p.StaticHeaders)
	header.Set("Accept", "application/vnd.github+json")
	return &GitHubNotificationsFetcher{
		provider: p.ID,
		baseURL:  strings.TrimRight(p.APIBaseURL, "/"),
		header:   header,
		client:   client,
	}
}

func (f *GitHubNotificationsFetcher) Provider() string { return f.provider }

func (f *GitHubNotificationsFetcher) Kind() string { return catalog.KindCodeHost }

func (f *GitHubNotificationsFetcher) Fetch(ctx context.Context, cred *models.Credential, _ Window) ([]json.RawMessage, error) {
	var feed []json.RawMessage
	if err := f.client.GetJSON(ctx, f.baseURL+"/notifications", cred.AccessToken, f.header, &feed); err != nil {
		return nil, err
	}
	if feed == nil {
		feed = []json.RawMessage{}
	}
	return feed, nil
}
