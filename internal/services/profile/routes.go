package profile

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API профилей
func (s *ProfileService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	// middleware на каждом маршруте: группа /api накрыла бы и публичные /api/auth/*
	app.Get("/api/profile", authMiddleware, s.GetProfile)
	app.Put("/api/profile", authMiddleware, s.UpdateProfile)

	users := app.Group("/api/users")
	users.Use(authMiddleware)
	users.Get("/", s.SearchUsers)
	users.Get("/:id", s.GetUser)
}
