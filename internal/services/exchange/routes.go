package exchange

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API обменов
func (s *ExchangeService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/exchanges")
	api.Use(authMiddleware)

	api.Get("/", s.ListExchanges)
	api.Get("/state", s.State)
	api.Post("/", s.CreateExchange)
	api.Get("/:id", s.GetExchange)
	api.Put("/:id/status", s.UpdateStatus)
	api.Get("/:id/ratings", s.ListRatings)
	api.Post("/:id/ratings/user", s.RateUser)
	api.Post("/:id/ratings/exchange", s.RateExchange)
}
