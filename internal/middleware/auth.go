// Package middleware provides authentication, logging and tracing middleware for the HTTP server.
package middleware

import (
	"strings"

	"talk/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// IdentityLocal is the fiber.Ctx local holding the authenticated identity.
const IdentityLocal = "identity"

// AuthRequired returns middleware that accepts only requests carrying a
// valid "Bearer <token>" signed with secret. The token subject becomes the
// caller identity of the request context.
func AuthRequired(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		identity, err := auth.ParseToken(secret, parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(IdentityLocal, identity)
		c.SetUserContext(auth.WithCaller(c.UserContext(), identity))
		return c.Next()
	}
}
