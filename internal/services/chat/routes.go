package chat

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API чатов
func (s *ChatService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/chats")
	api.Use(authMiddleware)

	api.Get("/", s.GetChats)
	api.Get("/unread", s.GetUnreadCount)
	api.Post("/messages", s.SendMessage)
	api.Post("/messages/:id/read", s.MarkMessageRead)
	api.Get("/:id/messages", s.GetChatMessages)
	api.Post("/:id/read", s.MarkChatRead)
}
