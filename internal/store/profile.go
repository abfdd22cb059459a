package store

import (
	"context"
	"errors"

	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"gorm.io/gorm"
)

type profileStore struct {
	db *gorm.DB
}

func NewProfileStore(db *gorm.DB) ProfileStore {
	return &profileStore{db: db}
}

func (s *profileStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &apperr.PersistenceError{Op: "get user", Err: err}
	}
	return &user, nil
}

func (s *profileStore) GetSettings(ctx context.Context, userID string) (*models.UserSettings, error) {
	var settings models.UserSettings
	if err := s.db.WithContext(ctx).First(&settings, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &apperr.PersistenceError{Op: "get settings", Err: err}
	}
	return &settings, nil
}

// RecentPendingTasks returns up to limit pending tasks, most recent first.
func (s *profileStore) RecentPendingTasks(ctx context.Context, userID string, limit int) ([]models.Task, error) {
	var tasks []models.Task
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.TaskStatusPending).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list pending tasks", Err: err}
	}
	return tasks, nil
}
