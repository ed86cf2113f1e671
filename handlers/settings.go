// handlers/settings.go
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"referral-ledger/middleware"
	"referral-ledger/services"
)

// SetupSettingsRoutes mounts the admin-only reward rate endpoints
func SetupSettingsRoutes(app fiber.Router, settings *services.SettingsService, log *zap.Logger) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(log), middleware.RequireRole("admin"))

	admin.Get("/settings/reward-rates", func(c *fiber.Ctx) error {
		active, err := settings.LoadActive(c.UserContext(), nil)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(active)
	})

	admin.Put("/settings/reward-rates", func(c *fiber.Ctx) error {
		var in services.SettingsInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		active, err := settings.Activate(c.UserContext(), in, middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(active)
	})
}
