package store

import (
	"context"
	"errors"
	"slices"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"github.com/pysugar/daily-nexus/internal/util"
	"gorm.io/gorm"
)

type turnStore struct {
	db *gorm.DB
}

func NewTurnStore(db *gorm.DB) TurnStore {
	return &turnStore{db: db}
}

// Append writes a new turn. A zero ID is replaced by the next snowflake.
func (s *turnStore) Append(ctx context.Context, turn *models.ConversationTurn) error {
	if turn.ID == 0 {
		turn.ID = util.NextID()
	}
	if err := s.db.WithContext(ctx).Create(turn).Error; err != nil {
		return &apperr.PersistenceError{Op: "append turn", Err: err}
	}
	return nil
}

func (s *turnStore) ListBySession(ctx context.Context, userID, sessionID string, limit int) ([]models.ConversationTurn, error) {
	var turns []models.ConversationTurn
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND session_id = ?", userID, sessionID).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list turns", Err: err}
	}
	slices.Reverse(turns)
	return turns, nil
}

func (s *turnStore) SessionOwner(ctx context.Context, sessionID string) (string, error) {
	var turn models.ConversationTurn
	err := s.db.WithContext(ctx).
		Select("user_id").
		Where("session_id = ?", sessionID).
		Order("id").
		Take(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", &apperr.PersistenceError{Op: "find session owner", Err: err}
	}
	return turn.UserID, nil
}
