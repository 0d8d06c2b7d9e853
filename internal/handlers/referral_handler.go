package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/referly/backend/internal/cache"
	"github.com/referly/backend/internal/referral"
)

// ReferralHandler handles referral code lifecycle requests
type ReferralHandler struct {
	referrals *referral.Service
	cache     *cache.ResponseCache
}

// NewReferralHandler creates a new referral handler. cache may be nil; the
// read endpoints then always hit the database.
func NewReferralHandler(referrals *referral.Service, cache *cache.ResponseCache) *ReferralHandler {
	return &ReferralHandler{referrals: referrals, cache: cache}
}

// UserSummary is the projection of a referred user exposed by the listing
// endpoint.
type UserSummary struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// CreateCode generates a referral code for the current user
func (h *ReferralHandler) CreateCode(c *gin.Context) {
	days := referral.DefaultValidityDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be an integer"})
			return
		}
		days = parsed
	}

	userID := c.GetUint("user_id")
	info, err := h.referrals.CreateCode(c.Request.Context(), userID, days)
	if err != nil {
		switch {
		case errors.Is(err, referral.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be >= 1"})
		case errors.Is(err, referral.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create referral code"})
		}
		return
	}

	c.JSON(http.StatusCreated, info)
}

// DeleteCode removes the current user's referral code. Deleting an absent
// code succeeds.
func (h *ReferralHandler) DeleteCode(c *gin.Context) {
	userID := c.GetUint("user_id")
	if err := h.referrals.DeleteCode(c.Request.Context(), userID); err != nil {
		if errors.Is(err, referral.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete referral code"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Referral code deleted"})
}

// GetCodeByEmail returns the referral code owned by the user with the
// given email. Responses are cached briefly; mutations invalidate the
// same key.
func (h *ReferralHandler) GetCodeByEmail(c *gin.Context) {
	email := c.Param("email")
	key := cache.ReferralCodeByEmailKey(email)

	if h.cache != nil {
		var cached referral.Info
		if hit, _ := h.cache.GetJSON(c.Request.Context(), key, &cached); hit {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	info, err := h.referrals.CodeInfoByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, referral.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Referral code not found for the given email"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up referral code"})
		return
	}

	if h.cache != nil {
		_ = h.cache.SetJSON(c.Request.Context(), key, info, cache.ReferralCodeByEmailTTL)
	}

	c.JSON(http.StatusOK, info)
}

// ListReferrals returns all users referred by the given referer, oldest
// first.
func (h *ReferralHandler) ListReferrals(c *gin.Context) {
	refererID, err := strconv.ParseUint(c.Param("referer_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "referer_id must be an integer"})
		return
	}

	key := cache.ReferredUsersKey(uint(refererID))
	if h.cache != nil {
		var cached []UserSummary
		if hit, _ := h.cache.GetJSON(c.Request.Context(), key, &cached); hit {
			c.JSON(http.StatusOK, cached)
			return
		}
	}

	users, err := h.referrals.ListReferred(c.Request.Context(), uint(refererID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list referred users"})
		return
	}

	summaries := make([]UserSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, UserSummary{ID: u.ID, Email: u.Email})
	}

	if h.cache != nil {
		_ = h.cache.SetJSON(c.Request.Context(), key, summaries, cache.ReferredUsersTTL)
	}

	c.JSON(http.StatusOK, summaries)
}

// ApplyCode redeems a referral code for the current user. Each account
// can redeem exactly once.
func (h *ReferralHandler) ApplyCode(c *gin.Context) {
	var req struct {
		ReferralCode string `json:"referral_code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetUint("user_id")
	info, err := h.referrals.Redeem(c.Request.Context(), userID, req.ReferralCode)
	if err != nil {
		switch {
		case errors.Is(err, referral.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "You have already entered a referral code"})
		case errors.Is(err, referral.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Referral code not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to apply referral code"})
		}
		return
	}

	c.JSON(http.StatusCreated, info)
}
