// Package catalog is the provider registry: it maps a provider id to its kind,
// OAuth endpoints, scopes and API base URL. Defaults are embedded and can be
// replaced by a YAML file and adjusted per provider through NEXUS_<ID>_* vars.
package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	googleOAuth "golang.org/x/oauth2/google"
	"gopkg.in/yaml.v3"
)

const (
	KindCalendar  = "calendar"
	KindCodeHost  = "code_host"
	KindChat      = "chat"
	KindMessaging = "messaging"

	AuthStyleParams = "params"
	AuthStyleHeader = "header"

	defaultTimeout = 30 * time.Second
)

// wellKnownEndpoints fill in OAuth URLs an entry leaves blank.
var wellKnownEndpoints = map[string]oauth2.Endpoint{
	"google": googleOAuth.Endpoint,
	"github": endpoints.GitHub,
	"gitlab": endpoints.GitLab,
	"slack":  endpoints.Slack,
}

//go:embed default_providers.yaml
var defaultProvidersYAML []byte

var providerIDRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

type fileConfig struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// ProviderConfig is one entry of the providers file.
type ProviderConfig struct {
	ID            string            `yaml:"id"`
	Kind          string            `yaml:"kind"`
	Enabled       *bool             `yaml:"enabled"`
	AuthURL       string            `yaml:"auth_url"`
	TokenURL      string            `yaml:"token_url"`
	AuthStyle     string            `yaml:"auth_style"`
	Refreshable   bool              `yaml:"refreshable"`
	Scopes        []string          `yaml:"scopes"`
	APIBaseURL    string            `yaml:"api_base_url"`
	DefaultModel  string            `yaml:"default_model"`
	StaticHeaders map[string]string `yaml:"static_headers"`
	Timeout       string            `yaml:"timeout"`
}

// Provider is a resolved registry entry, secrets included.
type Provider struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Enabled       bool              `json:"enabled"`
	AuthURL       string            `json:"auth_url,omitempty"`
	TokenURL      string            `json:"token_url,omitempty"`
	AuthStyle     string            `json:"auth_style,omitempty"`
	Refreshable   bool              `json:"refreshable"`
	Scopes        []string          `json:"scopes,omitempty"`
	APIBaseURL    string            `json:"api_base_url"`
	DefaultModel  string            `json:"default_model,omitempty"`
	StaticHeaders map[string]string `json:"static_headers,omitempty"`
	Timeout       time.Duration     `json:"-"`

	ClientID     string `json:"-"`
	ClientSecret string `json:"-"`
	APIKey       string `json:"-"`

	ClientIDEnv     string `json:"client_id_env,omitempty"`
	ClientSecretEnv string `json:"client_secret_env,omitempty"`
	APIKeyEnv       string `json:"api_key_env,omitempty"`
}

// SupportsOAuth reports whether the provider can take part in a code exchange.
func (p Provider) SupportsOAuth() bool {
	return p.TokenURL != "" && p.Kind != KindChat
}

// Catalog is an immutable set of providers keyed by id.
type Catalog struct {
	byID map[string]Provider
	ids  []string
}

// Load reads the providers file (or the embedded defaults) and applies env
// overrides and secrets.
func Load() (*Catalog, error) {
	cfgs, err := loadConfigProviders()
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		cfgs, err = parseProviders(defaultProvidersYAML, "embedded defaults")
		if err != nil {
			return nil, err
		}
	}
	return New(cfgs), nil
}

// New builds a catalog from explicit configs. Invalid ids are skipped.
func New(cfgs []ProviderConfig) *Catalog {
	c := &Catalog{byID: make(map[string]Provider, len(cfgs))}
	for _, cfg := range cfgs {
		p, ok := normalizeConfig(cfg)
		if !ok {
			continue
		}
		if _, dup := c.byID[p.ID]; !dup {
			c.ids = append(c.ids, p.ID)
		}
		c.byID[p.ID] = p
	}
	sort.Strings(c.ids)
	return c
}

// Get returns a provider by id, enabled or not.
func (c *Catalog) Get(id string) (Provider, bool) {
	p, ok := c.byID[normalizeProviderID(id)]
	if !ok {
		return Provider{}, false
	}
	return clone(p), true
}

// Enabled returns the provider only if it is enabled.
func (c *Catalog) Enabled(id string) (Provider, bool) {
	p, ok := c.Get(id)
	if !ok || !p.Enabled {
		return Provider{}, false
	}
	return p, true
}

// Providers returns every provider sorted by id.
func (c *Catalog) Providers() []Provider {
	out := make([]Provider, 0, len(c.ids))
	for _, id := range c.ids {
		out = append(out, clone(c.byID[id]))
	}
	return out
}

// ByKind returns enabled providers of the given kind.
func (c *Catalog) ByKind(kind string) []Provider {
	var out []Provider
	for _, id := range c.ids {
		p := c.byID[id]
		if p.Enabled && p.Kind == kind {
			out = append(out, clone(p))
		}
	}
	return out
}

// MissingSecrets lists the env vars an enabled provider needs but lacks.
func (c *Catalog) MissingSecrets() []string {
	var missing []string
	for _, id := range c.ids {
		p := c.byID[id]
		if !p.Enabled {
			continue
		}
		if p.Kind == KindChat {
			if p.APIKey == "" {
				missing = append(missing, p.APIKeyEnv)
			}
			continue
		}
		if !p.SupportsOAuth() {
			continue
		}
		if p.ClientID == "" {
			missing = append(missing, p.ClientIDEnv)
		}
		if p.ClientSecret == "" {
			missing = append(missing, p.ClientSecretEnv)
		}
	}
	return missing
}

func clone(p Provider) Provider {
	p.Scopes = append([]string(nil), p.Scopes...)
	if len(p.StaticHeaders) > 0 {
		cp := make(map[string]string, len(p.StaticHeaders))
		for k, v := range p.StaticHeaders {
			cp[k] = v
		}
		p.StaticHeaders = cp
	}
	return p
}

func loadConfigProviders() ([]ProviderConfig, error) {
	path, err := resolveConfigPath()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file %q: %w", path, err)
	}
	return parseProviders(data, path)
}

func parseProviders(data []byte, source string) ([]ProviderConfig, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %q: %w", source, err)
	}
	return cfg.Providers, nil
}

func resolveConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("NEXUS_PROVIDERS_FILE")); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", err
		}
		return explicit, nil
	}

	candidates := []string{
		"config/providers.yaml",
		"/etc/nexus/providers.yaml",
	}
	if homeDir, err := os.UserHomeDir(); err == nil && homeDir != "" {
		candidates = append(candidates, filepath.Join(homeDir, ".config", "nexus", "providers.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", nil
}

func normalizeConfig(cfg ProviderConfig) (Provider, bool) {
	id := normalizeProviderID(cfg.ID)
	if !providerIDRegexp.MatchString(id) {
		return Provider{}, false
	}

	kind := strings.TrimSpace(strings.ToLower(cfg.Kind))
	switch kind {
	case KindCalendar, KindCodeHost, KindChat, KindMessaging:
	default:
		return Provider{}, false
	}

	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}
	if raw := strings.TrimSpace(os.Getenv(providerEnvName(id, "ENABLED"))); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			enabled = v
		}
	}

	authStyle := strings.TrimSpace(strings.ToLower(cfg.AuthStyle))
	if authStyle == "" {
		authStyle = AuthStyleParams
	}
	if authStyle != AuthStyleParams && authStyle != AuthStyleHeader {
		return Provider{}, false
	}

	staticHeaders := normalizeHeaders(cfg.StaticHeaders)
	if envHeaders := strings.TrimSpace(os.Getenv(providerEnvName(id, "STATIC_HEADERS"))); envHeaders != "" {
		fromEnv := map[string]string{}
		if err := json.Unmarshal([]byte(envHeaders), &fromEnv); err == nil {
			for k, v := range normalizeHeaders(fromEnv) {
				staticHeaders[k] = v
			}
		}
	}

	timeout := defaultTimeout
	if raw := strings.TrimSpace(cfg.Timeout); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			timeout = parsed
		}
	}

	p := Provider{
		ID:              id,
		Kind:            kind,
		Enabled:         enabled,
		AuthURL:         envOr(id, "AUTH_URL", cfg.AuthURL),
		TokenURL:        envOr(id, "TOKEN_URL", cfg.TokenURL),
		AuthStyle:       authStyle,
		Refreshable:     cfg.Refreshable,
		Scopes:          normalizeScopes(cfg.Scopes),
		APIBaseURL:      envOr(id, "API_BASE_URL", cfg.APIBaseURL),
		DefaultModel:    envOr(id, "MODEL", cfg.DefaultModel),
		StaticHeaders:   staticHeaders,
		Timeout:         timeout,
		ClientIDEnv:     providerEnvName(id, "CLIENT_ID"),
		ClientSecretEnv: providerEnvName(id, "CLIENT_SECRET"),
		APIKeyEnv:       providerEnvName(id, "API_KEY"),
	}
	if ep, ok := wellKnownEndpoints[id]; ok && kind != KindChat {
		if p.AuthURL == "" {
			p.AuthURL = ep.AuthURL
		}
		if p.TokenURL == "" {
			p.TokenURL = ep.TokenURL
		}
	}
	p.ClientID = strings.TrimSpace(os.Getenv(p.ClientIDEnv))
	p.ClientSecret = strings.TrimSpace(os.Getenv(p.ClientSecretEnv))
	p.APIKey = strings.TrimSpace(os.Getenv(p.APIKeyEnv))
	if p.Kind == KindChat {
		p.ClientIDEnv, p.ClientSecretEnv = "", ""
	} else {
		p.APIKeyEnv = ""
	}
	return p, true
}

func envOr(id, suffix, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(providerEnvName(id, suffix))); v != "" {
		return v
	}
	return strings.TrimSpace(fallback)
}

func normalizeScopes(scopes []string) []string {
	seen := make(map[string]struct{}, len(scopes))
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func normalizeHeaders(headers map[string]string) map[string]string {
	normalized := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		value := strings.TrimSpace(v)
		if key == "" || value == "" {
			continue
		}
		normalized[key] = value
	}
	return normalized
}

func normalizeProviderID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func providerEnvName(id, suffix string) string {
	upper := strings.ToUpper(id)
	replacer := strings.NewReplacer("-", "_", ".", "_", "/", "_", " ", "_")
	upper = replacer.Replace(upper)
	return fmt.Sprintf("NEXUS_%s_%s", upper, suffix)
}
