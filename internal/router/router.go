package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/tugas-api/internal/config"
	"github.com/noah-isme/tugas-api/internal/handler"
	"github.com/noah-isme/tugas-api/internal/lifecycle"
	"github.com/noah-isme/tugas-api/internal/middleware"
	"github.com/noah-isme/tugas-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler *handler.AssignmentHandler
	SubmissionHandler *handler.SubmissionHandler
	GradingHandler    *handler.GradingHandler
	ActivityHandler   *handler.ActivityHandler
	JWTMiddleware     fiber.Handler
	// SubmitLimiter guards the mutating student routes.
	SubmitLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.Register(api.Group("/assignments", jwtMiddleware))
	}

	student := api.Group("/student", jwtMiddleware, middleware.RequireRole(lifecycle.RoleStudent))
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(student.Group("/assignments/:id/submission"), deps.SubmitLimiter)
	}

	teacher := api.Group("/teacher", jwtMiddleware, middleware.RequireRole(lifecycle.RoleTeacher, lifecycle.RoleAdmin))
	if deps.AssignmentHandler != nil {
		deps.AssignmentHandler.RegisterManagement(teacher.Group("/assignments"))
	}
	if deps.GradingHandler != nil {
		deps.GradingHandler.Register(teacher)
	}
	if deps.ActivityHandler != nil {
		deps.ActivityHandler.Register(teacher.Group("/activities"))
	}
}
