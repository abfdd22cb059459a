package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pysugar/daily-nexus/internal/api"
	"github.com/pysugar/daily-nexus/internal/assistant"
	"github.com/pysugar/daily-nexus/internal/auth/oauth"
	"github.com/pysugar/daily-nexus/internal/auth/session"
	"github.com/pysugar/daily-nexus/internal/auth/token"
	"github.com/pysugar/daily-nexus/internal/config"
	"github.com/pysugar/daily-nexus/internal/db"
	"github.com/pysugar/daily-nexus/internal/integrations"
	"github.com/pysugar/daily-nexus/internal/logging"
	"github.com/pysugar/daily-nexus/internal/providers/catalog"
	"github.com/pysugar/daily-nexus/internal/store"
	"github.com/pysugar/daily-nexus/internal/upstream"
	"github.com/pysugar/daily-nexus/internal/upstream/chat"
	"github.com/pysugar/daily-nexus/internal/util"
	"github.com/pysugar/daily-nexus/internal/version"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Env)

	if err := util.InitIDs(cfg.NodeID); err != nil {
		return err
	}

	providers, err := catalog.Load()
	if err != nil {
		return err
	}
	if missing := append(cfg.MissingSecrets(), providers.MissingSecrets()...); len(missing) > 0 {
		return errors.New("missing required secrets: " + strings.Join(missing, ", "))
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return err
	}

	creds := store.NewCredentialStore(database)
	exchanger := oauth.NewExchanger(providers, cfg.Auth.PublicBaseURL, &http.Client{Timeout: 30 * time.Second})
	tokens := token.NewManager(creds, exchanger)

	integ := integrations.NewService(providers, tokens, creds, buildFetchers(providers)...)

	chats := chat.NewRegistry(providers, nil)
	conversations := assistant.NewService(
		assistant.NewAssembler(store.NewProfileStore(database), tokens, cfg.Assistant),
		store.NewTurnStore(database),
		chats,
		assistant.Options{HistoryLimit: cfg.Assistant.HistoryLimit, MaxTokens: int(cfg.Assistant.MaxTokens)},
	)

	router := api.NewRouter(api.Deps{
		Sessions:        session.NewIssuer(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL),
		OAuth:           exchanger,
		Credentials:     creds,
		Integrations:    integ,
		Assistant:       conversations,
		IntegrationsURL: cfg.Auth.IntegrationsURL,
		DefaultLocation: cfg.Assistant.Location(),
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  time.Minute,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("daily-nexus listening",
			"addr", srv.Addr,
			"version", version.Version,
			"commit", version.Commit,
			"env", cfg.Env,
			"public_base_url", cfg.Auth.PublicBaseURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server stopped")
	return nil
}

// buildFetchers creates a data source for every provider that has one.
// Providers without a fetcher (slack) can still be connected.
func buildFetchers(providers *catalog.Catalog) []integrations.Fetcher {
	client := upstream.NewClient(nil)
	var fetchers []integrations.Fetcher
	for _, p := range providers.Providers() {
		if !p.Enabled {
			continue
		}
		switch p.ID {
		case "google":
			fetchers = append(fetchers, integrations.NewCalendarFetcher(p, client))
		case "github":
			fetchers = append(fetchers, integrations.NewGitHubNotificationsFetcher(p, client))
		case "gitlab":
			fetchers = append(fetchers, integrations.NewGitLabTodoFetcher(p, client.HTTPClient()))
		}
	}
	return fetchers
}
