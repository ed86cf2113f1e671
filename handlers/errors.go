// handlers/errors.go
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"referral-ledger/services"
)

func init() {
	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// StatusFor maps a domain error code to its HTTP status
func StatusFor(err error) int {
	switch services.ErrorCode(err) {
	case services.ErrNotFound.Code:
		return fiber.StatusNotFound
	case services.ErrConfigMissing.Code, services.ErrConfigConflict.Code:
		return fiber.StatusServiceUnavailable
	case services.ErrInvalidInput.Code:
		return fiber.StatusBadRequest
	case services.ErrInvalidTransition.Code:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	code := services.ErrorCode(err)
	if code == "" {
		code = services.ErrPersistence.Code
	}
	return c.Status(StatusFor(err)).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
		"code":  services.ErrInvalidInput.Code,
	})
}
