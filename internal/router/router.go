package router

import (
	"net/http"
	"time"

	"github.com/coursekart/exam-engine/internal/config"
	"github.com/coursekart/exam-engine/internal/handler"
	"github.com/coursekart/exam-engine/internal/middleware"
	"github.com/coursekart/exam-engine/internal/response"
	"github.com/coursekart/exam-engine/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Attempt *handler.AttemptHandler
	Review  *handler.ReviewHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 1. Auth Group (Public) ────────────────────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/student/login", handlers.Auth.Login)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.Logout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.Me)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/exams/:exam_id/attempts", handlers.Attempt.StartAttempt)

		studentAPI.GET("/attempts/:attempt_id", handlers.Attempt.GetStatus)
		studentAPI.POST("/attempts/:attempt_id/answers", handlers.Attempt.SubmitAnswer)
		studentAPI.POST("/attempts/:attempt_id/answers/bulk", handlers.Attempt.SubmitAllAnswers)
		studentAPI.POST("/attempts/:attempt_id/subjects/complete", handlers.Attempt.CompleteSubject)
		studentAPI.POST("/attempts/:attempt_id/advance", handlers.Attempt.AdvanceSubject)
		studentAPI.POST("/attempts/:attempt_id/submit", handlers.Attempt.SubmitExam)
		studentAPI.GET("/attempts/:attempt_id/result", handlers.Attempt.GetResult)
		studentAPI.GET("/attempts/:attempt_id/sync", handlers.Attempt.SyncTime)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/clock", handlers.WS.ClockStream)
	}

	// ─── 4. Reviewer Group (Reviewer JWT) ──────────────────────────────
	reviewerAPI := router.Group("/api/v1/reviewer")
	reviewerAPI.Use(middleware.RequireReviewerJWT(authService))
	{
		reviewerAPI.POST("/attempts/:attempt_id/review", handlers.Review.ReviewAnswer)
		reviewerAPI.POST("/attempts/:attempt_id/finalize", handlers.Review.Finalize)
	}

	return router
}
