package auth

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes регистрирует маршруты в Fiber
func (s *AuthService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/auth")

	api.Post("/register", s.Register)
	api.Post("/login", s.Login)
	api.Post("/telegram", s.TelegramAuthHandler)
	api.Get("/session", s.Current)

	// Защищенные маршруты
	api.Post("/logout", authMiddleware, s.Logout)
}
