package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/brightclass/assessment-engine/internal/config"
	"github.com/brightclass/assessment-engine/internal/models"
	"github.com/brightclass/assessment-engine/internal/repositories"
	"github.com/brightclass/assessment-engine/internal/services"
	"github.com/brightclass/assessment-engine/internal/utils"
	"github.com/brightclass/assessment-engine/internal/validator"
)

type HandlerManager struct {
	testHandler    *TestHandler
	attemptHandler *AttemptHandler
	gradingHandler *GradingHandler
	userHandler    *UserHandler
	authMiddleware *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		testHandler: NewTestHandler(
			serviceManager.Test(),
			serviceManager.Stats(),
			serviceManager.Report(),
			validator,
			logger,
		),
		attemptHandler: NewAttemptHandler(serviceManager.Attempt(), validator, logger),
		gradingHandler: NewGradingHandler(serviceManager.Grading(), validator, logger),
		userHandler:    NewUserHandler(userRepo, logger),
		authMiddleware: authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		authorOnly := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleAdmin)

		// Test routes
		tests := v1.Group("/tests")
		{
			// Create/modify tests - Teachers and Admins only
			tests.POST("", authorOnly, hm.testHandler.CreateTest)
			tests.PUT("/:id", authorOnly, hm.testHandler.UpdateTest)
			tests.DELETE("/:id", authorOnly, hm.testHandler.DeleteTest)

			// Lifecycle transitions - Teachers and Admins only
			tests.PUT("/:id/status", authorOnly, hm.testHandler.UpdateTestStatus)
			tests.POST("/:id/publish", authorOnly, hm.testHandler.PublishTest)
			tests.POST("/:id/unpublish", authorOnly, hm.testHandler.UnpublishTest)
			tests.POST("/:id/close", authorOnly, hm.testHandler.CloseTest)
			tests.POST("/:id/archive", authorOnly, hm.testHandler.ArchiveTest)

			// View tests - all authenticated users; the service decides
			// what each role sees
			tests.GET("", hm.testHandler.ListTests)
			tests.GET("/:id", hm.testHandler.GetTest)

			// Statistics and exports - Teachers and Admins only
			tests.GET("/:id/statistics", authorOnly, hm.testHandler.GetTestStatistics)
			tests.GET("/:id/export", authorOnly, hm.testHandler.ExportTestResults)

			// Creator-specific routes - Teachers and Admins only
			tests.GET("/creator/:creator_id", authorOnly, hm.testHandler.GetTestsByCreator)
			tests.GET("/creator/:creator_id/stats", authorOnly, hm.testHandler.GetCreatorStats)
		}

		// Attempt routes
		attempts := v1.Group("/attempts")
		{
			attempts.POST("/start", hm.attemptHandler.StartAttempt)
			attempts.POST("/submit", hm.attemptHandler.SubmitAttempt)
			attempts.GET("", hm.attemptHandler.GetMyAttempts)
			attempts.GET("/:id", hm.attemptHandler.GetAttempt)
			attempts.POST("/:id/resume", hm.attemptHandler.ResumeAttempt)
			attempts.POST("/:id/answer", hm.attemptHandler.SaveAnswer)
			attempts.GET("/:id/time-remaining", hm.attemptHandler.GetTimeRemaining)
			attempts.POST("/:id/timeout", hm.attemptHandler.HandleTimeout)

			// Test-specific routes
			attempts.GET("/current/:test_id", hm.attemptHandler.GetCurrentAttempt)
			attempts.GET("/can-start/:test_id", hm.attemptHandler.CanStartAttempt)
			attempts.GET("/count/:test_id", hm.attemptHandler.GetAttemptCount)
			attempts.GET("/test/:test_id", authorOnly, hm.attemptHandler.GetAttemptsByTest)

			// Student-specific routes - Teachers and Admins only
			// (students list their own via GET /attempts)
			attempts.GET("/student/:student_id", authorOnly, hm.attemptHandler.GetAttemptsByStudent)
		}

		// User routes (for audience assignment) - Teachers and Admins only
		users := v1.Group("/users")
		users.Use(authorOnly)
		{
			users.GET("", hm.userHandler.ListUsers)
			users.GET("/:id", hm.userHandler.GetUser)
		}

		// Grading routes - Teachers and Admins only
		grading := v1.Group("/grading")
		grading.Use(authorOnly)
		{
			grading.POST("/attempts/:attempt_id", hm.gradingHandler.GradeAttempt)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "assessment-engine",
		})
	})
}
