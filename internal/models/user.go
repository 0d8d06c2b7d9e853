package models

import (
	"time"
)

// User represents a user account. ReferralCode and ReferralCodeExpiry are
// always both set or both nil; RefererID is written once on redemption and
// never overwritten.
type User struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Email              string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username           string     `gorm:"type:varchar(64)" json:"username"`
	Password           string     `gorm:"type:varchar(255)" json:"-"`
	ReferralCode       *string    `gorm:"type:varchar(8);uniqueIndex" json:"referral_code,omitempty"`
	ReferralCodeExpiry *time.Time `json:"referral_code_expiry,omitempty"`
	RefererID          *uint      `gorm:"index" json:"referer_id,omitempty"`
	Referer            *User      `gorm:"foreignKey:RefererID" json:"-"`
	GoogleID           *string    `gorm:"type:varchar(255);uniqueIndex" json:"-"`
	TwoFactorEnabled   bool       `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret    string     `gorm:"type:varchar(255)" json:"-"`
	CreatedAt          time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// HasReferralCode reports whether the user currently owns a referral code.
func (u *User) HasReferralCode() bool {
	return u.ReferralCode != nil && u.ReferralCodeExpiry != nil
}

// ReferralCodeExpired reports whether the user's code is expired relative
// to now. Expired codes stay on the row; they are only treated as absent.
func (u *User) ReferralCodeExpired(now time.Time) bool {
	return u.ReferralCodeExpiry != nil && u.ReferralCodeExpiry.Before(now)
}
