package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// CurrentUser источник текущего пользователя агента
type CurrentUser interface {
	CurrentAccount() (models.Account, bool)
}

// AuthMiddleware создаёт middleware для проверки JWT.
// Токен должен принадлежать пользователю активной сессии.
func AuthMiddleware(jwtService *utils.JWTService, session CurrentUser) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization header",
			})
		}

		// Проверяем Bearer токен
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		userID, err := jwtService.ExtractUserID(parts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		acc, ok := session.CurrentAccount()
		if !ok || acc.ID != userID {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Session is not active for this user",
			})
		}

		// Добавляем userID в контекст
		c.Locals("userID", userID)

		return c.Next()
	}
}

// UserID возвращает идентификатор пользователя, установленный AuthMiddleware
func UserID(c fiber.Ctx) string {
	id, _ := c.Locals("userID").(string)
	return id
}
