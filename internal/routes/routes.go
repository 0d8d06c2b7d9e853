package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/referly/backend/internal/handlers"
	"github.com/referly/backend/internal/middleware"
)

// RegisterRoutes configures all API routes
func RegisterRoutes(router *gin.Engine, authHandler *handlers.AuthHandler, referralHandler *handlers.ReferralHandler) {
	// 60 requests per minute per IP, 5 auth attempts per minute
	rateLimiter := middleware.NewRateLimiter(60, 5, 10, 3)
	router.Use(rateLimiter.IPRateLimiterMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := router.Group("/api/auth")
	authGroup.Use(rateLimiter.AuthRateLimiterMiddleware())
	{
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/signin", authHandler.Signin)
		authGroup.POST("/google", authHandler.GoogleAuth)
		authGroup.POST("/forgot-password", authHandler.ForgotPassword)
		authGroup.POST("/reset-password", authHandler.ResetPassword)
	}

	userGroup := router.Group("/api/user")
	userGroup.Use(middleware.AuthMiddleware())
	{
		userGroup.PUT("/password", authHandler.ChangePassword)
	}

	mfaGroup := router.Group("/api/mfa")
	mfaGroup.Use(middleware.AuthMiddleware())
	{
		mfaGroup.POST("/setup-totp", authHandler.SetupTOTP)
		mfaGroup.POST("/verify-totp", authHandler.VerifyTOTP)
	}

	referralGroup := router.Group("/api/referrals")
	{
		// Cached read endpoints
		referralGroup.GET("/email/:email/code", referralHandler.GetCodeByEmail)
		referralGroup.GET("/:referer_id", referralHandler.ListReferrals)

		// Mutations require authentication
		authed := referralGroup.Group("")
		authed.Use(middleware.AuthMiddleware())
		{
			authed.POST("/code", referralHandler.CreateCode)
			authed.DELETE("/code", referralHandler.DeleteCode)
			authed.POST("/code/apply", referralHandler.ApplyCode)
		}
	}
}
