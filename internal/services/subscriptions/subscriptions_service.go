package subscriptions

import (
	"sort"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/subscription"
)

// ScopeFactory строит область подписки для пользователя
type ScopeFactory func(userID string) subscription.Scope

// SubscriptionsService открывает и закрывает живые запросы по запросу экранов UI
type SubscriptionsService struct {
	manager *subscription.Manager
	scopes  map[string]ScopeFactory
}

// NewSubscriptionsService создает новый экземпляр SubscriptionsService
func NewSubscriptionsService(manager *subscription.Manager, scopes map[string]ScopeFactory) *SubscriptionsService {
	return &SubscriptionsService{manager: manager, scopes: scopes}
}

// Open открывает подписку на именованную область
func (s *SubscriptionsService) Open(c fiber.Ctx) error {
	var payload struct {
		Scope string `json:"scope"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}
	factory, ok := s.scopes[payload.Scope]
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Неизвестная область подписки",
			"scopes": s.names(),
		})
	}

	handle, err := s.manager.Subscribe(factory(middleware.UserID(c)))
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": handle.ID()})
}

// Close отменяет подписку
func (s *SubscriptionsService) Close(c fiber.Ctx) error {
	if !s.manager.Close(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Подписка не найдена"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// List возвращает открытые подписки
func (s *SubscriptionsService) List(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"active": s.manager.Active(),
		"scopes": s.names(),
	})
}

func (s *SubscriptionsService) names() []string {
	names := make([]string, 0, len(s.scopes))
	for name := range s.scopes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
