package notifications

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// NotificationsService API уведомлений текущего пользователя
type NotificationsService struct {
	notifications *store.NotificationStore
}

// NewNotificationsService создает новый экземпляр NotificationsService
func NewNotificationsService(notifications *store.NotificationStore) *NotificationsService {
	return &NotificationsService{notifications: notifications}
}

// List возвращает уведомления, новые первыми
func (s *NotificationsService) List(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	list := s.notifications.UserNotifications(userID)
	return c.JSON(fiber.Map{
		"notifications": list,
		"count":         len(list),
		"unread":        s.notifications.UnreadCount(userID),
	})
}

// UnreadCount возвращает количество непрочитанных уведомлений
func (s *NotificationsService) UnreadCount(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"count": s.notifications.UnreadCount(middleware.UserID(c))})
}

// MarkAsRead отмечает уведомление прочитанным
func (s *NotificationsService) MarkAsRead(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	n, err := s.notifications.MarkAsRead(ctx, c.Params("id"))
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(n)
}

// MarkAllAsRead отмечает прочитанными все уведомления
func (s *NotificationsService) MarkAllAsRead(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	marked, err := s.notifications.MarkAllAsRead(ctx)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(fiber.Map{"marked": marked})
}

// Delete удаляет уведомление
func (s *NotificationsService) Delete(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.notifications.Delete(ctx, c.Params("id")); err != nil {
		return middleware.Fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
