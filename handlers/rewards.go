// handlers/rewards.go
package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"referral-ledger/services"
)

type issueRequest struct {
	ReferralID string `json:"referral_id"`
}

// SetupRewardRoutes exposes the conversion trigger.
// Callers may retry freely: a repeat returns already_credited=true.
func SetupRewardRoutes(app fiber.Router, rewardService *services.RewardService) {
	app.Post("/rewards/issue", func(c *fiber.Ctx) error {
		var req issueRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		req.ReferralID = strings.TrimSpace(req.ReferralID)
		if req.ReferralID == "" {
			return badRequest(c, "referral_id is required")
		}

		result, err := rewardService.Issue(c.UserContext(), req.ReferralID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})
}
