package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/referly/backend/internal/models"
	"github.com/referly/backend/internal/referral"
	"github.com/referly/backend/internal/utils"
)

// resetTokenValidity is how long an emailed password reset token stays
// usable.
const resetTokenValidity = 24 * time.Hour

// Store is the persistence capability the account service runs against.
// internal/database.UserStore satisfies it.
type Store interface {
	GetUser(ctx context.Context, id uint) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindUserByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateTwoFactor(ctx context.Context, userID uint, enabled bool, secret string) error
	UpdatePassword(ctx context.Context, userID uint, passwordHash string) error
}

// TokenStore persists password reset tokens. internal/database.TokenStore
// satisfies it.
type TokenStore interface {
	CreateResetToken(ctx context.Context, userID uint, token string, expiresAt time.Time) (*models.PasswordResetToken, error)
	FindResetToken(ctx context.Context, token string) (*models.PasswordResetToken, error)
	DeleteResetToken(ctx context.Context, id uuid.UUID) error
}

// Notifier delivers outbound mail. The SMTP implementation lives in
// internal/services/email; tests inject a recording fake so no mail
// transport is ever required.
type Notifier interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, token string) error
	SendWelcomeEmail(ctx context.Context, toEmail string) error
}

// EmailVerifier checks deliverability of an address before signup. The
// hunter.io implementation lives in internal/verify.
type EmailVerifier interface {
	Verify(ctx context.Context, email string) (bool, error)
}

// GoogleIdentity is the profile returned by the OAuth code exchange.
type GoogleIdentity struct {
	ID            string
	Email         string
	VerifiedEmail bool
}

// IdentityProvider exchanges a Google authorization code for a verified
// identity. internal/verify.GoogleProvider satisfies it.
type IdentityProvider interface {
	Exchange(ctx context.Context, code string) (*GoogleIdentity, error)
}

// Service handles registration, authentication and credential recovery.
type Service struct {
	store     Store
	tokens    TokenStore
	referrals *referral.Service
	notifier  Notifier
	verifier  EmailVerifier
	identity  IdentityProvider
	now       func() time.Time
}

// NewService wires the account service. verifier and identity may be nil
// when the corresponding integrations are not configured; signup then
// skips deliverability checks and Google login is unavailable.
func NewService(store Store, tokens TokenStore, referrals *referral.Service, notifier Notifier, verifier EmailVerifier, identity IdentityProvider) *Service {
	return &Service{
		store:     store,
		tokens:    tokens,
		referrals: referrals,
		notifier:  notifier,
		verifier:  verifier,
		identity:  identity,
		now:       time.Now,
	}
}

// Signup registers a new account. When referralCode is non-empty it must
// resolve to an unexpired code; the new account is then linked to the
// code's owner at creation.
func (s *Service) Signup(ctx context.Context, email, password, referralCode string) (*models.User, error) {
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrEmailTaken, email)
	} else if !errors.Is(err, referral.ErrUserNotFound) {
		return nil, err
	}

	if s.verifier != nil {
		deliverable, err := s.verifier.Verify(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("verifying email %s: %w", email, err)
		}
		if !deliverable {
			return nil, fmt.Errorf("%w: %s", ErrEmailUndeliverable, email)
		}
	}

	var refererID *uint
	if referralCode != "" {
		referer, err := s.referrals.LookupByCode(ctx, referralCode)
		if err != nil {
			if errors.Is(err, referral.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrInvalidReferralCode, referralCode)
			}
			return nil, err
		}
		refererID = &referer.ID
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &models.User{
		Email:     email,
		Username:  utils.GenerateUsername(email),
		Password:  hash,
		RefererID: refererID,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.SendWelcomeEmail(ctx, user.Email); err != nil {
			log.Printf("account: welcome email to %s failed: %v", user.Email, err)
		}
	}

	return user, nil
}

// Signin authenticates with email and password. Accounts with TOTP
// enabled additionally require a valid code.
func (s *Service) Signin(ctx context.Context, email, password, totpCode string) (*models.User, utils.TokenPair, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, referral.ErrUserNotFound) {
			return nil, utils.TokenPair{}, ErrInvalidCredentials
		}
		return nil, utils.TokenPair{}, err
	}

	if user.Password == "" || !utils.CheckPasswordHash(password, user.Password) {
		return nil, utils.TokenPair{}, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		if totpCode == "" {
			return nil, utils.TokenPair{}, ErrTOTPRequired
		}
		if !utils.ValidateTOTP(user.TwoFactorSecret, totpCode) {
			return nil, utils.TokenPair{}, ErrInvalidTOTP
		}
	}

	tokens, err := utils.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("generating tokens: %w", err)
	}
	return user, tokens, nil
}

// GoogleSignin completes a Google OAuth login, creating the account on
// first sight. Google-originated accounts carry no local password until
// one is set through the reset flow.
func (s *Service) GoogleSignin(ctx context.Context, code string) (*models.User, utils.TokenPair, error) {
	if s.identity == nil {
		return nil, utils.TokenPair{}, errors.New("google auth is not configured")
	}

	id, err := s.identity.Exchange(ctx, code)
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("exchanging google code: %w", err)
	}
	if !id.VerifiedEmail {
		return nil, utils.TokenPair{}, fmt.Errorf("%w: google email not verified", ErrInvalidCredentials)
	}

	user, err := s.store.FindUserByGoogleID(ctx, id.ID)
	if errors.Is(err, referral.ErrUserNotFound) {
		// Fall back to the email for accounts that signed up with a
		// password first.
		user, err = s.store.FindUserByEmail(ctx, id.Email)
	}
	if errors.Is(err, referral.ErrUserNotFound) {
		user = &models.User{
			Email:    id.Email,
			Username: utils.GenerateUsername(id.Email),
			GoogleID: &id.ID,
		}
		if err := s.store.CreateUser(ctx, user); err != nil {
			return nil, utils.TokenPair{}, fmt.Errorf("creating google user: %w", err)
		}
	} else if err != nil {
		return nil, utils.TokenPair{}, err
	}

	tokens, err := utils.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		return nil, utils.TokenPair{}, fmt.Errorf("generating tokens: %w", err)
	}
	return user, tokens, nil
}

// ChangePassword replaces the password after verifying the old one.
func (s *Service) ChangePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, referral.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !utils.CheckPasswordHash(oldPassword, user.Password) {
		return ErrInvalidCredentials
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	return s.store.UpdatePassword(ctx, userID, hash)
}

// RequestPasswordReset issues a reset token and emails it. Whether the
// address is registered is not revealed to the caller; an unknown email
// is a silent no-op.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, referral.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token := utils.GenerateSecureToken(32)
	if _, err := s.tokens.CreateResetToken(ctx, user.ID, token, s.now().Add(resetTokenValidity)); err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}

	if err := s.notifier.SendPasswordResetEmail(ctx, user.Email, token); err != nil {
		return fmt.Errorf("sending reset email: %w", err)
	}
	return nil
}

// ResetPassword redeems a reset token. Tokens are single use: the record
// is deleted on success, and expired tokens are rejected and removed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	record, err := s.tokens.FindResetToken(ctx, token)
	if err != nil {
		return ErrInvalidResetToken
	}
	if record.Expired(s.now()) {
		_ = s.tokens.DeleteResetToken(ctx, record.ID)
		return ErrInvalidResetToken
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, record.UserID, hash); err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	if err := s.tokens.DeleteResetToken(ctx, record.ID); err != nil {
		log.Printf("account: deleting used reset token %s failed: %v", record.ID, err)
	}
	return nil
}

// SetupTOTP generates and stores a TOTP secret for the user without
// enabling it yet. Returns the secret and the otpauth provisioning URL.
func (s *Service) SetupTOTP(ctx context.Context, userID uint) (secret, otpauthURL string, err error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, referral.ErrUserNotFound) {
			return "", "", ErrNotFound
		}
		return "", "", err
	}

	secret = utils.GenerateOTPSecret()
	if err := s.store.UpdateTwoFactor(ctx, user.ID, false, secret); err != nil {
		return "", "", fmt.Errorf("storing totp secret: %w", err)
	}

	return secret, utils.GenerateOTPQRCode(secret, user.Email, "Referly"), nil
}

// EnableTOTP verifies the first code from the authenticator and turns the
// second factor on.
func (s *Service) EnableTOTP(ctx context.Context, userID uint, code string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, referral.ErrUserNotFound) {
			return ErrNotFound
		}
		return err
	}
	if user.TwoFactorSecret == "" || !utils.ValidateTOTP(user.TwoFactorSecret, code) {
		return ErrInvalidTOTP
	}

	return s.store.UpdateTwoFactor(ctx, user.ID, true, user.TwoFactorSecret)
}
