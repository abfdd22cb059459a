package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEXUS_ENV", "test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr() != "127.0.0.1:8086" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr())
	}
	if cfg.Assistant.HistoryLimit != 20 {
		t.Fatalf("expected history limit 20, got %d", cfg.Assistant.HistoryLimit)
	}
	if cfg.Auth.SessionTTL != 168*time.Hour {
		t.Fatalf("unexpected session ttl %s", cfg.Auth.SessionTTL)
	}
	if cfg.Auth.IntegrationsURL != "/integrations" {
		t.Fatalf("unexpected integrations url %s", cfg.Auth.IntegrationsURL)
	}
	if got := cfg.MissingSecrets(); len(got) != 1 || got[0] != "NEXUS_AUTH_SESSION_SECRET" {
		t.Fatalf("expected session secret reported missing, got %v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEXUS_ENV", "test")
	t.Setenv("NEXUS_SERVER_PORT", "9090")
	t.Setenv("NEXUS_AUTH_SESSION_SECRET", "0123456789abcdef")
	t.Setenv("NEXUS_ASSISTANT_RESPONSE_STYLE", "concise")
	t.Setenv("NEXUS_ASSISTANT_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port override, got %d", cfg.Server.Port)
	}
	if cfg.Assistant.ResponseStyle != "concise" {
		t.Fatalf("expected response style override, got %s", cfg.Assistant.ResponseStyle)
	}
	if cfg.Assistant.Location().String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", cfg.Assistant.Location())
	}
	if got := cfg.MissingSecrets(); len(got) != 0 {
		t.Fatalf("expected no missing secrets, got %v", got)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEXUS_ENV", "test")
	t.Setenv("NEXUS_ASSISTANT_RESPONSE_STYLE", "sarcastic")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "ResponseStyle") {
		t.Fatalf("expected validation error on ResponseStyle, got %v", err)
	}
}
