// handlers/analytics.go
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"referral-ledger/services"
)

type recomputeRequest struct {
	PeriodDate string `json:"period_date"`
	PeriodType string `json:"period_type"`
}

func SetupAnalyticsRoutes(app fiber.Router, analytics *services.AnalyticsService) {
	group := app.Group("/analytics")

	group.Post("/recompute", func(c *fiber.Ctx) error {
		var req recomputeRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return badRequest(c, "invalid request body")
			}
		}
		if req.PeriodDate == "" {
			req.PeriodDate = time.Now().UTC().Format(services.PeriodDateLayout)
		}
		periodType, err := services.ParsePeriodType(req.PeriodType)
		if err != nil {
			return respondError(c, err)
		}

		snap, err := analytics.Recompute(c.UserContext(), req.PeriodDate, periodType)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})

	group.Get("/snapshots", func(c *fiber.Ctx) error {
		periodType, err := services.ParsePeriodType(c.Query("period_type"))
		if err != nil {
			return respondError(c, err)
		}
		snaps, err := analytics.List(c.UserContext(), periodType, c.QueryInt("limit", 30))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"snapshots": snaps})
	})

	group.Get("/snapshots/:date", func(c *fiber.Ctx) error {
		periodType, err := services.ParsePeriodType(c.Query("period_type"))
		if err != nil {
			return respondError(c, err)
		}
		snap, err := analytics.Get(c.UserContext(), c.Params("date"), periodType)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(snap)
	})
}
