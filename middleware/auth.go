package middleware

import (
	"errors"
	"log"

	"step-rewards-system/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// UserContextMiddleware extracts the caller identity set by the gateway.
// Every route behind it requires an authenticated user.
func UserContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// AdminOnly checks the caller against the admins allow-list. Must run after
// UserContextMiddleware.
func AdminOnly(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth context"})
		}

		var admin models.Admin
		if err := db.First(&admin, "user_id = ?", userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("[ADMIN] denied admin operation for %s on %s", userID, c.Path())
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "User must be an admin to perform this operation",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.Next()
	}
}

// ServiceAuthMiddleware validates the shared token on service-to-service
// routes (the identity provider's bootstrap callback).
func ServiceAuthMiddleware(expectedToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expectedToken == "" || c.Get("X-Service-Token") != expectedToken {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service authentication token",
			})
		}
		return c.Next()
	}
}
