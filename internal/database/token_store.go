package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
	"gorm.io/gorm"
)

// ErrTokenNotFound means no matching password reset token exists.
var ErrTokenNotFound = errors.New("password reset token not found")

// TokenStore persists password reset tokens.
type TokenStore struct {
	db *gorm.DB
}

// NewTokenStore creates a token store on the given database handle.
func NewTokenStore(db *gorm.DB) *TokenStore {
	return &TokenStore{db: db}
}

// CreateResetToken stores a new password reset token for the user.
func (s *TokenStore) CreateResetToken(ctx context.Context, userID uint, token string, expiresAt time.Time) (*models.PasswordResetToken, error) {
	resetToken := models.PasswordResetToken{
		ID:        uuid.New(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if err := s.db.WithContext(ctx).Create(&resetToken).Error; err != nil {
		return nil, err
	}
	return &resetToken, nil
}

// FindResetToken returns the stored token record for the given token value.
func (s *TokenStore) FindResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error) {
	var resetToken models.PasswordResetToken
	if err := s.db.WithContext(ctx).Where("token = ?", token).First(&resetToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &resetToken, nil
}

// DeleteResetToken removes a token once it has been used or rejected.
func (s *TokenStore) DeleteResetToken(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Delete(&models.PasswordResetToken{}, "id = ?", id).Error
}

// DeleteExpiredResetTokens purges tokens whose expiry is in the past and
// returns how many rows were removed. Called by the cleanup job.
func (s *TokenStore) DeleteExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.PasswordResetToken{})
	return result.RowsAffected, result.Error
}
