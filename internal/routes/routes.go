package routes

import (
	"github.com/gin-gonic/gin"

	"teamboard/internal/handlers"
	"teamboard/internal/middleware"
	"teamboard/internal/models"
)

func SetupRoutes(
	r *gin.Engine,
	jwtSecret []byte,
	authHandler *handlers.AuthHandler,
	taskHandler *handlers.TaskHandler,
	eventsHandler *handlers.EventsHandler,
) *gin.Engine {

	// ---- public
	r.GET("/healthz", handlers.Health)
	r.GET("/ws", eventsHandler.Serve)

	api := r.Group("/api")
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// ---- protected
	tasks := api.Group("/tasks", middleware.AuthMiddleware(jwtSecret))
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)
		tasks.PUT("/:id", taskHandler.Update)
		tasks.DELETE("/:id", taskHandler.Delete)
	}

	// admin reads (Manager)
	admin := tasks.Group("", middleware.RequireRoles(models.RoleManager))
	{
		admin.GET("/users", taskHandler.Users)
		admin.GET("/logs", taskHandler.Logs)
		admin.GET("/logs/report.pdf", taskHandler.LogsReport)
	}

	return r
}
