package media

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты загрузки вложений
func (s *MediaService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/media")
	api.Use(authMiddleware)

	api.Post("/", s.Upload)
	api.Get("/params", s.UploadParams)
}
