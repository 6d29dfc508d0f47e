package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kodelab-id/kodelab-api/internal/config"
	"github.com/kodelab-id/kodelab-api/internal/handler"
	"github.com/kodelab-id/kodelab-api/internal/middleware"
	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ActivityHandler   *handler.ActivityHandler
	SubmissionHandler *handler.SubmissionHandler
	SeedHandler       *handler.SeedHandler
	JWTMiddleware     fiber.Handler
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
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ActivityHandler != nil {
		activities := api.Group("/activities", jwtMiddleware)
		deps.ActivityHandler.Register(activities)
		deps.ActivityHandler.RegisterAuthoring(activities.Group("",
			middleware.RequireRole(models.RoleProfessor, models.RoleAdmin)))
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware,
			middleware.RateLimit("submissions", 30, time.Minute))
		deps.SubmissionHandler.Register(submissions)
	}

	if deps.SeedHandler != nil {
		deps.SeedHandler.Register(api.Group("/seed"))
	}
}
