package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tablekit-backend/internal/engine"
)

// Middleware returns a Fiber middleware that validates JWT tokens and
// sets the UserContext consumed by action authorize predicates and row
// callbacks.
func Middleware(secret string) fiber.Handler {
	tokens := NewTokens(secret)
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		user, err := tokens.VerifyAccess(parts[1])
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}
		c.Locals("user", user)

		return c.Next()
	}
}
