package integrations

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"github.com/pysugar/daily-nexus/internal/upstream"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

const gitlabTodoPageSize = 20

// GitLabTodoFetcher returns the user's pending GitLab To-Do items.
type GitLabTodoFetcher struct {
	provider   string
	baseURL    string
	httpClient *http.Client
}

func NewGitLabTodoFetcher(p catalog.Provider, httpClient *http.Client) *GitLabTodoFetcher {
	return &GitLabTodoFetcher{provider: p.ID, baseURL: p.APIBaseURL, httpClient: httpClient}
}

func (f *GitLabTodoFetcher) Provider() string { return f.provider }

func (f *GitLabTodoFetcher) Kind() string { return catalog.KindCodeHost }

func (f *GitLabTodoFetcher) Fetch(ctx context.Context, cred *models.Credential, _ Window) ([]json.RawMessage, error) {
	opts := []gitlab.ClientOptionFunc{gitlab.WithoutRetries()}
	if f.baseURL != "" {
		opts = append(opts, gitlab.WithBaseURL(f.baseURL))
	}
	if f.httpClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(f.httpClient))
	}
	client, err := gitlab.NewOAuthClient(cred.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}

	todos, resp, err := client.Todos.ListTodos(&gitlab.ListTodosOptions{
		ListOptions: gitlab.ListOptions{PerPage: gitlabTodoPageSize},
		State:       gitlab.Ptr("pending"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		if resp != nil && resp.Response != nil {
			return nil, &upstream.StatusError{StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("listing gitlab todos: %w", err)
	}

	records := make([]json.RawMessage, 0, len(todos))
	for _, todo := range todos {
		if todo == nil {
			continue
		}
		raw, err := json.Marshal(todo)
		if err != nil {
			return nil, fmt.Errorf("encoding gitlab todo: %w", err)
		}
		records = append(records, raw)
	}
	return records, nil
}
