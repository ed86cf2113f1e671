// handlers/accounts.go
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"referral-ledger/services"
)

func SetupAccountRoutes(app fiber.Router, ledger *services.LedgerService) {
	accounts := app.Group("/accounts/:id")

	// unknown accounts are 404 here even though the ledger itself reports 0 for them
	accounts.Get("/balance", func(c *fiber.Ctx) error {
		id := c.Params("id")
		exists, err := ledger.AccountExists(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		if !exists {
			return respondError(c, services.ErrNotFound)
		}

		balance, err := ledger.Balance(c.UserContext(), id)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"account_id": id,
			"balance":    balance,
		})
	})

	accounts.Get("/ledger", func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		size := c.QueryInt("size", 20)

		entries, total, err := ledger.Entries(c.UserContext(), c.Params("id"), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"account_id": c.Params("id"),
			"entries":    entries,
			"total":      total,
			"page":       page,
		})
	})

	accounts.Get("/audit", func(c *fiber.Ctx) error {
		id := c.Params("id")
		err := ledger.VerifyChain(c.UserContext(), id)
		switch {
		case err == nil:
			return c.JSON(fiber.Map{"account_id": id, "consistent": true})
		case errors.Is(err, services.ErrChainBroken):
			return c.JSON(fiber.Map{"account_id": id, "consistent": false, "detail": err.Error()})
		default:
			return respondError(c, err)
		}
	})
}
