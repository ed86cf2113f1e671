// handlers/referrals.go
package handlers

import (
	"github.com/gofiber/fiber/v2"

	"referral-ledger/services"
)

type signupRequest struct {
	ReferredAccountID string `json:"referred_account_id"`
}

func SetupReferralRoutes(app fiber.Router, referralService *services.ReferralService) {
	app.Post("/referrals", func(c *fiber.Ctx) error {
		var in services.CreateReferralInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		referral, err := referralService.Create(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(referral)
	})

	app.Get("/referrals/:id", func(c *fiber.Ctx) error {
		referral, err := referralService.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(referral)
	})

	app.Post("/referrals/:id/signup", func(c *fiber.Ctx) error {
		var req signupRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		referral, err := referralService.MarkSignedUp(c.UserContext(), c.Params("id"), req.ReferredAccountID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(referral)
	})

	app.Post("/share-events", func(c *fiber.Ctx) error {
		var in services.ShareEventInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		event, err := referralService.RecordShareEvent(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(event)
	})
}
