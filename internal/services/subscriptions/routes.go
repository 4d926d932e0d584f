package subscriptions

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты подписок
func (s *SubscriptionsService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/subscriptions")
	api.Use(authMiddleware)

	api.Get("/", s.List)
	api.Post("/", s.Open)
	api.Delete("/:id", s.Close)
}
