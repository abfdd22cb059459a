package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_EmbeddedDefaults(t *testing.T) {
	t.Setenv("NEXUS_PROVIDERS_FILE", "")
	t.Chdir(t.TempDir())

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	google, ok := c.Enabled("google")
	if !ok {
		t.Fatal("expected google provider enabled by default")
	}
	if google.Kind != KindCalendar || !google.Refreshable || !google.SupportsOAuth() {
		t.Fatalf("unexpected google entry %+v", google)
	}
	if _, ok := c.Enabled("gitlab"); ok {
		t.Fatal("expected gitlab disabled by default")
	}
	if _, ok := c.Get("gitlab"); !ok {
		t.Fatal("expected gitlab present in registry")
	}

	chat := c.ByKind(KindChat)
	if len(chat) != 1 || chat[0].ID != "gemini" {
		t.Fatalf("expected only gemini chat provider enabled, got %+v", chat)
	}
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "providers.yaml")
	cfg := `providers:
  - id: GitHub
    kind: code_host
    token_url: https://github.com/login/oauth/access_token
    api_base_url: https://api.github.com
    scopes: [notifications, notifications, " read:user "]
  - id: bad id
    kind: code_host
  - id: fax
    kind: fax_machine
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("NEXUS_PROVIDERS_FILE", cfgPath)
	t.Setenv("NEXUS_GITHUB_API_BASE_URL", "http://127.0.0.1:9999")
	t.Setenv("NEXUS_GITHUB_CLIENT_ID", "cid")
	t.Setenv("NEXUS_GITHUB_STATIC_HEADERS", `{"X-Test":"yes"}`)

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(c.Providers()); got != 1 {
		t.Fatalf("expected invalid entries skipped, got %d providers", got)
	}

	gh, ok := c.Enabled("github")
	if !ok {
		t.Fatal("expected github provider")
	}
	if gh.APIBaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("expected env base URL override, got %s", gh.APIBaseURL)
	}
	if strings.Join(gh.Scopes, ",") != "notifications,read:user" {
		t.Fatalf("unexpected scopes %v", gh.Scopes)
	}
	if gh.StaticHeaders["X-Test"] != "yes" {
		t.Fatalf("expected static header override, got %+v", gh.StaticHeaders)
	}
	if gh.ClientID != "cid" {
		t.Fatalf("expected client id from env, got %q", gh.ClientID)
	}
}

func TestMissingSecrets(t *testing.T) {
	t.Setenv("NEXUS_GOOGLE_CLIENT_ID", "id")
	t.Setenv("NEXUS_GOOGLE_CLIENT_SECRET", "")
	t.Setenv("NEXUS_GEMINI_API_KEY", "")
	t.Setenv("NEXUS_SLACK_CLIENT_ID", "")

	disabled := false
	c := New([]ProviderConfig{
		{ID: "google", Kind: KindCalendar, TokenURL: "https://oauth2.googleapis.com/token"},
		{ID: "gemini", Kind: KindChat, APIBaseURL: "https://example.com"},
		{ID: "slack", Kind: KindMessaging, Enabled: &disabled, TokenURL: "https://slack.com/api/oauth.v2.access"},
	})

	got := strings.Join(c.MissingSecrets(), ",")
	want := "NEXUS_GEMINI_API_KEY,NEXUS_GOOGLE_CLIENT_SECRET"
	if got != want {
		t.Fatalf("MissingSecrets() = %s, want %s", got, want)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	c := New([]ProviderConfig{{ID: "github", Kind: KindCodeHost, Scopes: []string{"notifications"}}})

	p, _ := c.Get("github")
	p.Scopes[0] = "mutated"

	again, _ := c.Get("github")
	if again.Scopes[0] != "notifications" {
		t.Fatalf("registry entry mutated through returned copy: %v", again.Scopes)
	}
}

func TestNew_WellKnownEndpoints(t *testing.T) {
	for _, name := range []string{"NEXUS_GITHUB_AUTH_URL", "NEXUS_GITHUB_TOKEN_URL", "NEXUS_GITLAB_AUTH_URL", "NEXUS_GITLAB_TOKEN_URL", "NEXUS_ACME_TOKEN_URL"} {
		t.Setenv(name, "")
	}

	c := New([]ProviderConfig{
		{ID: "github", Kind: KindCodeHost},
		{ID: "gitlab", Kind: KindCodeHost, TokenURL: "https://gitlab.internal/oauth/token"},
		{ID: "acme", Kind: KindCodeHost},
	})

	gh, _ := c.Get("github")
	if !gh.SupportsOAuth() || gh.TokenURL != "https://github.com/login/oauth/access_token" || gh.AuthURL != "https://github.com/login/oauth/authorize" {
		t.Fatalf("expected github endpoints filled in, got auth=%q token=%q", gh.AuthURL, gh.TokenURL)
	}
	gl, _ := c.Get("gitlab")
	if gl.TokenURL != "https://gitlab.internal/oauth/token" || gl.AuthURL != "https://gitlab.com/oauth/authorize" {
		t.Fatalf("configured token url must win, got auth=%q token=%q", gl.AuthURL, gl.TokenURL)
	}
	acme, _ := c.Get("acme")
	if acme.SupportsOAuth() {
		t.Fatal("provider without a token url must not support oauth")
	}
}
