package handlers

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	applog "lotauction/internal/log"
)

const adminHeader = "X-Admin-Token"

// RequireAdmin guards operator routes with a bcrypt-hashed shared token sent in
// X-Admin-Token. An empty hash disables the guard (local development).
func RequireAdmin(hash string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if hash == "" {
			return c.Next()
		}
		tok := c.Get(adminHeader)
		if tok == "" {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "missing token"})
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "admin token required"})
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(tok)) != nil {
			applog.Security(c, "access.denied.admin", map[string]any{"reason": "bad token"})
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "access denied"})
		}
		c.Locals("admin", true)
		return c.Next()
	}
}
