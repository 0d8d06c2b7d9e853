package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/referly/backend/internal/account"
	"github.com/referly/backend/internal/utils"
)

// AuthHandler handles authentication related requests
type AuthHandler struct {
	accounts *account.Service
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(accounts *account.Service) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// SignupRequest represents the request body for signup
type SignupRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	ReferralCode string `json:"referral_code"`
}

// SigninRequest represents the request body for signin
type SigninRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code"` // Required only if 2FA is enabled
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.accounts.Signup(c.Request.Context(), req.Email, req.Password, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "Email already in use"})
		case errors.Is(err, account.ErrEmailUndeliverable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "The email address provided is not valid"})
		case errors.Is(err, account.ErrInvalidReferralCode):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Incorrect referral code"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		}
		return
	}

	tokens, err := utils.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate tokens"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

// Signin handles user authentication
func (h *AuthHandler) Signin(c *gin.Context) {
	var req SigninRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, tokens, err := h.accounts.Signin(c.Request.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrTOTPRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "2FA code required", "require_2fa": true})
		case errors.Is(err, account.ErrInvalidTOTP):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid 2FA code"})
		case errors.Is(err, account.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign in"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

// GoogleAuth handles Google OAuth authentication
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, tokens, err := h.accounts.GoogleSignin(c.Request.Context(), req.Code)
	if err != nil {
		if errors.Is(err, account.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email not verified with Google"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete authentication"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Authentication successful",
		"user": gin.H{
			"id":    user.ID,
			"email": user.Email,
		},
		"tokens": tokens,
	})
}

// ForgotPassword initiates the password reset process
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Don't reveal whether the email is registered
	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		c.JSON(http.StatusOK, gin.H{"message": "If your email is registered, you will receive a password reset link"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "If your email is registered, you will receive a password reset link"})
}

// ResetPassword handles password reset via an emailed token
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token    string `json:"token" binding:"required"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, account.ErrInvalidResetToken) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset password"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset successfully"})
}

// ChangePassword updates the current user's password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password" binding:"required"`
		NewPassword string `json:"new_password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")
	if err := h.accounts.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Old password isn't valid"})
		case errors.Is(err, account.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "The password has been successfully changed"})
}

// SetupTOTP generates a TOTP secret for the current user
func (h *AuthHandler) SetupTOTP(c *gin.Context) {
	userID := c.GetUint("user_id")

	secret, otpauthURL, err := h.accounts.SetupTOTP(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set up 2FA"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"secret":      secret,
		"otpauth_url": otpauthURL,
	})
}

// VerifyTOTP confirms the first authenticator code and enables 2FA
func (h *AuthHandler) VerifyTOTP(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")
	if err := h.accounts.EnableTOTP(c.Request.Context(), userID, req.Code); err != nil {
		if errors.Is(err, account.ErrInvalidTOTP) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid 2FA code"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enable 2FA"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "2FA enabled successfully"})
}
