package database

import (
	"context"
	"errors"

	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/referral"
	"gorm.io/gorm"
)

// UserStore is the gorm-backed implementation of referral.Store. It also
// carries the user lookups the account service needs.
type UserStore struct {
	db *gorm.DB
}

// NewUserStore creates a user store on the given database handle.
func NewUserStore(db *gorm.DB) *UserStore {
	return &UserStore{db: db}
}

// GetUser returns the user with the given id.
func (s *UserStore) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referral.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail returns the user with the given email.
func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referral.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByCode returns the user owning the given referral code. Expiry
// is evaluated by the caller at read time, not here.
func (s *UserStore) FindUserByCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("referral_code = ?", code).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referral.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByGoogleID returns the user with the given Google identity.
func (s *UserStore) FindUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, referral.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ListUsersByReferer returns all users referred by the given user, in
// insertion order.
func (s *UserStore) ListUsersByReferer(ctx context.Context, refererID uint) ([]models.User, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("referer_id = ?", refererID).
		Order("id ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser inserts a new user.
func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return referral.ErrDuplicateCode
		}
		return err
	}
	return nil
}

// SaveReferralCode persists the user's referral code and expiry, including
// explicit NULLs when the code was cleared. Nothing else on the row is
// touched, so writes racing on unrelated columns are never reverted.
func (s *UserStore) SaveReferralCode(ctx context.Context, user *models.User) error {
	err := s.db.WithContext(ctx).Model(user).
		Select("referral_code", "referral_code_expiry").
		Updates(map[string]interface{}{
			"referral_code":        user.ReferralCode,
			"referral_code_expiry": user.ReferralCodeExpiry,
		}).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return referral.ErrDuplicateCode
		}
		return err
	}
	return nil
}

// UpdateTwoFactor sets the user's TOTP secret and enabled flag.
func (s *UserStore) UpdateTwoFactor(ctx context.Context, userID uint, enabled bool, secret string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"two_factor_enabled": enabled,
			"two_factor_secret":  secret,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return referral.ErrUserNotFound
	}
	return nil
}

// SetRefererID links userID to refererID if and only if no referer is set
// yet. The conditional UPDATE makes concurrent redemptions race safely:
// exactly one write matches the WHERE clause.
func (s *UserStore) SetRefererID(ctx context.Context, userID, refererID uint) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND referer_id IS NULL", userID).
		Update("referer_id", refererID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return referral.ErrUserNotFound
		}
		return referral.ErrRefererAlreadySet
	}
	return nil
}

// UpdatePassword sets a new password hash for the user.
func (s *UserStore) UpdatePassword(ctx context.Context, userID uint, passwordHash string) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return referral.ErrUserNotFound
	}
	return nil
}
