package notifications

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API уведомлений
func (s *NotificationsService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/notifications")
	api.Use(authMiddleware)

	api.Get("/", s.List)
	api.Get("/unread", s.UnreadCount)
	api.Post("/read-all", s.MarkAllAsRead)
	api.Post("/:id/read", s.MarkAsRead)
	api.Delete("/:id", s.Delete)
}
