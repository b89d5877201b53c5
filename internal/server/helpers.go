package server

import (
	"strconv"

	"talk/internal/models"

	"github.com/gofiber/fiber/v2"
)

// respondError writes err with the status matching its code.
func respondError(c *fiber.Ctx, err error) error {
	return models.RespondWithError(c, models.HTTPStatus(models.ErrorCode(err)), err)
}

// parseUintParam reads a route parameter as uint64.
func parseUintParam(c *fiber.Ctx, param string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(param), 10, 64)
	if err != nil {
		return 0, models.NewInvalidArgumentError("invalid " + param)
	}
	return id, nil
}

// parseExpected reads the required ?expected= query value.
func parseExpected(c *fiber.Ctx) (uint32, error) {
	raw := c.Query("expected")
	if raw == "" {
		return 0, models.NewInvalidArgumentError("expected is required")
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, models.NewInvalidArgumentError("invalid expected")
	}
	return uint32(n), nil
}
