package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/pysugar/daily-nexus/internal/apperr"
	"github.com/pysugar/daily-nexus/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type credentialStore struct {
	db *gorm.DB
}

// NewCredentialStore returns a gorm-backed CredentialStore.
func NewCredentialStore(db *gorm.DB) CredentialStore {
	return &credentialStore{db: db}
}

func (s *credentialStore) Get(ctx context.Context, userID, provider string) (*models.Credential, error) {
	var cred models.Credential
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, &apperr.PersistenceError{Op: "get credential", Err: err}
	}
	return &cred, nil
}

// Put inserts the credential or replaces the tokens of the existing row for
// the same (user, provider).
func (s *credentialStore) Put(ctx context.Context, cred *models.Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "scopes", "updated_at"}),
	}).Create(cred).Error
	if err != nil {
		return &apperr.PersistenceError{Op: "put credential", Err: err}
	}
	return nil
}

func (s *credentialStore) ListByUser(ctx context.Context, userID string) ([]models.Credential, error) {
	var creds []models.Credential
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("provider").
		Find(&creds).Error
	if err != nil {
		return nil, &apperr.PersistenceError{Op: "list credentials", Err: err}
	}
	return creds, nil
}

func (s *credentialStore) Delete(ctx context.Context, userID, provider string) error {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		Delete(&models.Credential{})
	if res.Error != nil {
		return &apperr.PersistenceError{Op: "delete credential", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
