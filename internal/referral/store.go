package referral

import (
	"context"
	"errors"

	"github.com/referly/backend/internal/models"
)

// Store errors surfaced by implementations. ErrDuplicateCode maps to the
// unique index on users.referral_code and triggers one regeneration retry.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateCode     = errors.New("duplicate referral code")
	ErrRefererAlreadySet = errors.New("referer already set")
)

// Store is the persistence capability the referral service runs against.
// The production implementation is backed by gorm (internal/database);
// tests use an in-memory fake.
type Store interface {
	// GetUser returns the user with the given id or ErrUserNotFound.
	GetUser(ctx context.Context, id uint) (*models.User, error)

	// FindUserByEmail returns the user with the given email or ErrUserNotFound.
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)

	// FindUserByCode returns the user owning the given referral code or
	// ErrUserNotFound. Expiry is not evaluated here; the service checks it
	// at read time.
	FindUserByCode(ctx context.Context, code string) (*models.User, error)

	// ListUsersByReferer returns all users whose referer_id equals the
	// argument, ordered by creation.
	ListUsersByReferer(ctx context.Context, refererID uint) ([]models.User, error)

	// SaveReferralCode persists the user's referral code and expiry, and
	// nothing else on the row. Returns ErrDuplicateCode when the code
	// collides with another user's.
	SaveReferralCode(ctx context.Context, user *models.User) error

	// SetRefererID atomically sets referer_id on the user if and only if it
	// is still unset. Returns ErrRefererAlreadySet when the compare-and-set
	// loses, ErrUserNotFound when the user does not exist.
	SetRefererID(ctx context.Context, userID, refererID uint) error
}
