package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/auth"
	"github.com/mimic-ai/interview/internal/facial"
	"github.com/mimic-ai/interview/internal/feedback"
	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/internal/questions"
	"github.com/mimic-ai/interview/internal/transcriptions"
	"github.com/mimic-ai/interview/internal/videos"
	"github.com/mimic-ai/interview/pkg/response"
)

type handlers struct {
	auth           *auth.Handler
	questions      *questions.Handler
	videos         *videos.Handler
	facial         *facial.Handler
	transcriptions *transcriptions.Handler
	feedback       *feedback.Handler
}

func newRouter(h handlers, validate middleware.TokenValidator, corsOrigins string, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(corsOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	jwt := middleware.JWT(validate)

	api := router.Group("/api")

	// Auth (public except check-auth)
	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", h.auth.Register)
		authGroup.POST("/login", h.auth.Login)
		authGroup.POST("/logout", h.auth.Logout)
		authGroup.GET("/check-auth", jwt, h.auth.CheckAuth)
		authGroup.PUT("/update-profile", jwt, h.auth.UpdateProfile)
		authGroup.POST("/change-password", jwt, h.auth.ChangePassword)
		authGroup.POST("/forgot-password", h.auth.ForgotPassword)
		authGroup.POST("/reset-password/:token", h.auth.ResetPassword)
		authGroup.POST("/reset-token", jwt, h.auth.ResendVerification)
		authGroup.GET("/verify/:token", h.auth.Verify)
	}

	// Protected API (JWT required)
	protected := api.Group("")
	protected.Use(jwt)
	{
		protected.GET("/interview/random-test", h.questions.Random)
		protected.POST("/interview/questions", middleware.RequireRole(models.RoleAdmin), h.questions.Create)
		protected.POST("/interview/ai-upload", h.videos.Ticket)

		protected.POST("/video/ai-upload-complete", h.videos.Complete)
		protected.POST("/video/analyze-face", h.facial.Analyze)
		protected.POST("/video/transcribe", h.transcriptions.Start)
		protected.GET("/video/transcribe/:operation_name", h.transcriptions.Status)

		protected.POST("/feedback/generate", h.feedback.Generate)
	}
	return router
}
