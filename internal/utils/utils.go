package utils

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/gosimple/slug"
	"github.com/pquerna/otp/totp"
)

// GenerateSecureToken generates a secure random token of specified length
func GenerateSecureToken(length int) string {
	b := make([]byte, length)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)[:length]
}

// GenerateUsername derives a display handle from an email address with a
// random suffix to avoid clashes.
func GenerateUsername(email string) string {
	base := slug.Make(strings.Split(email, "@")[0])
	return base + "-" + strings.ToLower(GenerateSecureToken(4))
}

// GenerateOTPSecret generates a new TOTP secret
func GenerateOTPSecret() string {
	secretBytes := make([]byte, 20)
	rand.Read(secretBytes)
	return base32.StdEncoding.EncodeToString(secretBytes)
}

// ValidateTOTP validates a TOTP code against a secret
func ValidateTOTP(secret string, code string) bool {
	return totp.Validate(code, secret)
}

// GenerateOTPQRCode generates a URL for a QR code for TOTP setup
func GenerateOTPQRCode(secret string, accountName string, issuer string) string {
	accountName = url.QueryEscape(accountName)
	issuer = url.QueryEscape(issuer)
	return fmt.Sprintf("otpauth://totp/%s:%s?secret=%s&issuer=%s",
		issuer, accountName, secret, issuer)
}
