package api

import (
	"net/http"

	"stridecoach/coach-app/internal/domain"
	"stridecoach/coach-app/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	engine *service.DeliveryEngine,
	scheduleService service.ScheduleService,
) {

	authHandler := NewAuthHandler(authService)
	scheduleHandler := NewScheduleHandler(engine, scheduleService)
	planHandler := NewPlanHandler(engine, scheduleService)
	adminHandler := NewAdminHandler(engine)

	authMiddleware := AuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Schedule Routes ---
		scheduleGroup := protected.Group("/schedule")
		{
			scheduleGroup.POST("", scheduleHandler.CreateSchedule)
			scheduleGroup.GET("", scheduleHandler.GetSchedule)
			scheduleGroup.PATCH("", scheduleHandler.UpdateSchedule)
			scheduleGroup.DELETE("", scheduleHandler.DeactivateSchedule)
			scheduleGroup.POST("/pause", scheduleHandler.PauseSchedule)
			scheduleGroup.POST("/resume", scheduleHandler.ResumeSchedule)
		}

		// --- Plan Routes ---
		planGroup := protected.Group("/plans")
		{
			planGroup.POST("/generate", planHandler.GeneratePlan)
			planGroup.GET("", planHandler.GetHistory)
			planGroup.DELETE("", planHandler.DeleteAllPlans)
			planGroup.GET("/:planId", planHandler.GetPlan)
			planGroup.POST("/:planId/progress", planHandler.UpdateProgress)
		}

		// --- Admin Routes ---
		// Manual triggers for the sweeps the scheduler normally runs.
		adminGroup := protected.Group("/admin")
		adminGroup.Use(RoleMiddleware(domain.RoleAdmin))
		{
			adminGroup.POST("/deliveries/run", adminHandler.RunDeliveries)
			adminGroup.POST("/deliveries/overdue", adminHandler.RunOverdueDeliveries)
		}
	}
}
