// internal/api/router.go
package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visa-tracker/internal/common/auth"
	"visa-tracker/internal/common/logger"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Handler  *Handler
	Verifier auth.TokenVerifier
	Logger   logger.Logger
}

// NewRouter builds the fiber application with all routes and middleware
// attached. Metrics and health stay outside the authenticated group.
func NewRouter(cfg RouteConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(errorHandlingMiddleware(cfg.Logger))

	app.Get("/healthz", cfg.Handler.Health)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v1 := app.Group("/api/v1", authMiddleware(cfg.Verifier))
	v1.Post("/applications", cfg.Handler.SubmitApplication)
	v1.Get("/applications", requireAdmin(cfg.Handler), cfg.Handler.ListApplications)
	v1.Get("/applications/:userId", cfg.Handler.GetApplication)

	admin := v1.Group("/admin", requireAdmin(cfg.Handler))
	admin.Post("/reminders/:userId", cfg.Handler.SendReminder)
	admin.Post("/sweep", cfg.Handler.TriggerSweep)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"error": fiber.Map{"code": "NOT_FOUND", "message": "route not found"},
		})
	})

	return app
}
