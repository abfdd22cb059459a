package chat

import (
	"log/slog"
	"net/http"

	"github.com/pysugar/daily-nexus/internal/providers/catalog"
)

// Registry holds a client per enabled chat provider.
type Registry struct {
	clients map[string]Completer
	ids     []string
}

// NewRegistry builds clients for every enabled chat provider that has an
// API key. httpClient may be nil.
func NewRegistry(c *catalog.Catalog, httpClient *http.Client) *Registry {
	r := &Registry{clients: map[string]Completer{}}
	for _, p := range c.ByKind(catalog.KindChat) {
		client := NewClient(p, httpClient)
		if !client.IsEnabled() {
			slog.Warn("chat provider has no API key, skipping", "provider", p.ID, "env", p.APIKeyEnv)
			continue
		}
		r.Register(p.ID, client)
	}
	return r
}

// Register adds or replaces the completer for id.
func (r *Registry) Register(id string, c Completer) {
	if _, ok := r.clients[id]; !ok {
		r.ids = append(r.ids, id)
	}
	r.clients[id] = c
}

// Lookup returns the completer for id.
func (r *Registry) Lookup(id string) (Completer, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Select returns the preferred provider when registered, else the first one.
func (r *Registry) Select(preferred string) (string, Completer, bool) {
	if c, ok := r.Lookup(preferred); ok {
		return preferred, c, true
	}
	if len(r.ids) == 0 {
		return "", nil, false
	}
	id := r.ids[0]
	return id, r.clients[id], true
}
