// Package assistant assembles per-user context and runs assistant turns
// against the configured chat provider.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pysugar/daily-nexus/internal/config"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/store"
)

// MaxContextTasks bounds the pending tasks placed in a snapshot.
const MaxContextTasks = 5

// ContextSnapshot is what the assistant knows about the user for one turn.
// It is stored verbatim on the assistant turn.
type ContextSnapshot struct {
	UserProfile            models.User     `json:"user_profile"`
	RecentPendingTasks     []models.Task   `json:"recent_pending_tasks"`
	ConnectedProviderTypes []string        `json:"connected_provider_types"`
	CurrentTimestamp       time.Time       `json:"current_timestamp"`
	AISettings             AISettings      `json:"ai_settings"`
	ClientContext          json.RawMessage `json:"client_context,omitempty"`
}

// AISettings selects the chat provider and tone.
type AISettings struct {
	Provider      string `json:"provider"`
	Model         string `json:"model,omitempty"`
	ResponseStyle string `json:"response_style"`
}

// ConnectionSource reports the providers a user has usable credentials for.
type ConnectionSource interface {
	Connected(ctx context.Context, userID string) ([]string, error)
}

// Assembler gathers a ContextSnapshot. It never calls an AI provider.
type Assembler struct {
	profiles    store.ProfileStore
	connections ConnectionSource
	defaults    config.AssistantConfig
	now         func() time.Time
}

func NewAssembler(profiles store.ProfileStore, connections ConnectionSource, defaults config.AssistantConfig) *Assembler {
	return &Assembler{
		profiles:    profiles,
		connections: connections,
		defaults:    defaults,
		now:         time.Now,
	}
}

// Assemble reads every source concurrently. A failing source is logged and
// replaced by its default; only cancellation of ctx is returned as an error.
func (a *Assembler) Assemble(ctx context.Context, userID string) (*ContextSnapshot, error) {
	snap := &ContextSnapshot{
		UserProfile:            models.User{ID: userID},
		RecentPendingTasks:     []models.Task{},
		ConnectedProviderTypes: []string{},
		CurrentTimestamp:       a.now().UTC(),
		AISettings: AISettings{
			Provider:      a.defaults.DefaultProvider,
			Model:         a.defaults.DefaultModel,
			ResponseStyle: a.defaults.ResponseStyle,
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		user, err := a.profiles.GetUser(gctx, userID)
		if err != nil {
			return degrade(gctx, "profile", err)
		}
		snap.UserProfile = *user
		return nil
	})

	g.Go(func() error {
		tasks, err := a.profiles.RecentPendingTasks(gctx, userID, MaxContextTasks)
		if err != nil {
			return degrade(gctx, "tasks", err)
		}
		if len(tasks) > MaxContextTasks {
			tasks = tasks[:MaxContextTasks]
		}
		if tasks != nil {
			snap.RecentPendingTasks = tasks
		}
		return nil
	})

	g.Go(func() error {
		ids, err := a.connections.Connected(gctx, userID)
		if err != nil {
			return degrade(gctx, "connected providers", err)
		}
		if ids != nil {
			snap.ConnectedProviderTypes = ids
		}
		return nil
	})

	g.Go(func() error {
		settings, err := a.profiles.GetSettings(gctx, userID)
		if err != nil {
			return degrade(gctx, "ai settings", err)
		}
		if settings.AIProvider != "" {
			snap.AISettings.Provider = settings.AIProvider
			snap.AISettings.Model = settings.AIModel
		}
		if settings.AIResponseStyle != "" {
			snap.AISettings.ResponseStyle = settings.AIResponseStyle
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

// degrade logs a failed source and swallows the error unless ctx is done.
func degrade(ctx context.Context, source string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, store.ErrNotFound) {
		slog.DebugContext(ctx, "context source empty, using default", "source", source)
		return nil
	}
	slog.WarnContext(ctx, "context source failed, using default", "source", source, "error", err)
	return nil
}
