// Package store is the persistence layer: credentials, the append-only turn
// log and read access to profile, settings and tasks.
package store

import (
	"context"
	"errors"

	"github.com/pysugar/daily-nexus/internal/db/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// CredentialStore holds at most one credential per (user, provider).
type CredentialStore interface {
	Get(ctx context.Context, userID, provider string) (*models.Credential, error)
	Put(ctx context.Context, cred *models.Credential) error
	ListByUser(ctx context.Context, userID string) ([]models.Credential, error)
	Delete(ctx context.Context, userID, provider string) error
}

// ProfileStore reads data owned by the wider application.
type ProfileStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetSettings(ctx context.Context, userID string) (*models.UserSettings, error)
	RecentPendingTasks(ctx context.Context, userID string, limit int) ([]models.Task, error)
}

// TurnStore is the append-only conversation log.
type TurnStore interface {
	Append(ctx context.Context, turn *models.ConversationTurn) error
	// ListBySession returns the latest limit turns of a session, oldest first.
	ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationTurn, error)
	// SessionOwner returns the user who started a session, or ErrNotFound.
	SessionOwner(ctx context.Context, sessionID string) (string, error)
}
