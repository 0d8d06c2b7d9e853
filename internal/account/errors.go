package account

import "errors"

// Domain errors returned by the account service.
var (
	ErrEmailTaken          = errors.New("email already in use")
	ErrEmailUndeliverable  = errors.New("email address is not deliverable")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidReferralCode = errors.New("invalid referral code")
	ErrInvalidResetToken   = errors.New("invalid or expired reset token")
	ErrTOTPRequired        = errors.New("totp code required")
	ErrInvalidTOTP         = errors.New("invalid totp code")
	ErrNotFound            = errors.New("user not found")
)
