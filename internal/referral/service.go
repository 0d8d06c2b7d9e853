package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/referly/backend/internal/cache"
	"github.com/referly/backend/internal/models"
)

// DefaultValidityDays is the validity window applied when the caller does
// not supply one.
const DefaultValidityDays = 30

// Invalidator evicts cached responses for the given keys. Implementations
// must be best-effort: failures are logged, never returned to the caller.
type Invalidator interface {
	Invalidate(ctx context.Context, keys ...string)
}

// Info is the referral state returned to callers.
type Info struct {
	UserID       uint   `json:"user_id"`
	ReferralCode string `json:"referral_code"`
	IsExpired    bool   `json:"is_expired"`
}

// Service owns the referral code lifecycle: creation, expiry evaluation,
// deletion and one-time redemption.
type Service struct {
	store Store
	inv   Invalidator
	now   func() time.Time
}

// NewService creates a referral service. inv may be nil when no response
// cache is wired, e.g. in tests.
func NewService(store Store, inv Invalidator) *Service {
	return &Service{
		store: store,
		inv:   inv,
		now:   time.Now,
	}
}

// CreateCode generates a fresh referral code for the user, valid for the
// given number of days. Any previous code is overwritten unconditionally.
func (s *Service) CreateCode(ctx context.Context, userID uint, validityDays int) (*Info, error) {
	if validityDays < 1 {
		return nil, fmt.Errorf("%w: validity days must be >= 1, got %d", ErrValidation, validityDays)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("%w: loading user %d: %v", ErrDependency, userID, err)
	}

	expiry := s.now().Add(time.Duration(validityDays) * 24 * time.Hour)

	// The unique index on referral_code is the collision check; a clash is
	// treated as transient and retried once with a fresh code.
	for attempt := 0; ; attempt++ {
		code := GenerateCode(CodeLength)
		user.ReferralCode = &code
		user.ReferralCodeExpiry = &expiry

		err = s.store.SaveReferralCode(ctx, user)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateCode) && attempt == 0 {
			continue
		}
		return nil, fmt.Errorf("%w: saving referral code for user %d: %v", ErrDependency, userID, err)
	}

	s.invalidate(ctx, user)

	return &Info{UserID: user.ID, ReferralCode: *user.ReferralCode, IsExpired: false}, nil
}

// DeleteCode clears the user's referral code and its expiry. Deleting an
// already-absent code is not an error.
func (s *Service) DeleteCode(ctx context.Context, userID uint) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return fmt.Errorf("%w: loading user %d: %v", ErrDependency, userID, err)
	}

	user.ReferralCode = nil
	user.ReferralCodeExpiry = nil

	if err := s.store.SaveReferralCode(ctx, user); err != nil {
		return fmt.Errorf("%w: clearing referral code for user %d: %v", ErrDependency, userID, err)
	}

	s.invalidate(ctx, user)

	return nil
}

// LookupByCode returns the user owning the code, only if the code is not
// expired at the time of the call. Expired and nonexistent codes are
// indistinguishable to the caller.
func (s *Service) LookupByCode(ctx context.Context, code string) (*models.User, error) {
	user, err := s.store.FindUserByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: referral code %q", ErrNotFound, code)
		}
		return nil, fmt.Errorf("%w: looking up referral code: %v", ErrDependency, err)
	}
	if !user.HasReferralCode() || user.ReferralCodeExpired(s.now()) {
		return nil, fmt.Errorf("%w: referral code %q", ErrNotFound, code)
	}
	return user, nil
}

// LookupByEmail returns the user with the given email.
func (s *Service) LookupByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user with email %q", ErrNotFound, email)
		}
		return nil, fmt.Errorf("%w: looking up user by email: %v", ErrDependency, err)
	}
	return user, nil
}

// CodeInfoByEmail returns the referral state for the user with the given
// email. Unlike LookupByCode, an expired code is reported rather than
// hidden, so owners can see their code lapsed.
func (s *Service) CodeInfoByEmail(ctx context.Context, email string) (*Info, error) {
	user, err := s.LookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.HasReferralCode() {
		return nil, fmt.Errorf("%w: no referral code for email %q", ErrNotFound, email)
	}
	return &Info{
		UserID:       user.ID,
		ReferralCode: *user.ReferralCode,
		IsExpired:    user.ReferralCodeExpired(s.now()),
	}, nil
}

// ListReferred returns all users referred by the given referer, in the
// order their accounts were created.
func (s *Service) ListReferred(ctx context.Context, refererID uint) ([]models.User, error) {
	users, err := s.store.ListUsersByReferer(ctx, refererID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing referred users for %d: %v", ErrDependency, refererID, err)
	}
	return users, nil
}

// Redeem links the current user to the owner of the given code. Each
// account may redeem exactly once; the write is a compare-and-set on
// referer_id so two concurrent redemptions cannot both succeed.
func (s *Service) Redeem(ctx context.Context, userID uint, code string) (*Info, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		}
		return nil, fmt.Errorf("%w: loading user %d: %v", ErrDependency, userID, err)
	}
	if user.RefererID != nil {
		return nil, fmt.Errorf("%w: user %d already redeemed a referral code", ErrConflict, userID)
	}

	referer, err := s.LookupByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if err := s.store.SetRefererID(ctx, userID, referer.ID); err != nil {
		switch {
		case errors.Is(err, ErrRefererAlreadySet):
			return nil, fmt.Errorf("%w: user %d already redeemed a referral code", ErrConflict, userID)
		case errors.Is(err, ErrUserNotFound):
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
		default:
			return nil, fmt.Errorf("%w: redeeming code for user %d: %v", ErrDependency, userID, err)
		}
	}

	// The referer's cached listing is stale now that it gained a user.
	if s.inv != nil {
		s.inv.Invalidate(ctx, cache.ReferredUsersKey(referer.ID))
	}

	return &Info{UserID: userID, ReferralCode: code, IsExpired: false}, nil
}

// invalidate evicts the cache entries addressable by the read paths for
// this user. Mutations call it before reporting success; failures never
// surface to the caller.
func (s *Service) invalidate(ctx context.Context, user *models.User) {
	if s.inv == nil {
		return
	}
	s.inv.Invalidate(ctx,
		cache.ReferralCodeByEmailKey(user.Email),
		cache.ReferredUsersKey(user.ID),
	)
}
