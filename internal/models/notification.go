package models

import "time"

// NotificationType тип уведомления
type NotificationType string

const (
	NotificationExchangeRequest   NotificationType = "exchange_request"
	NotificationExchangeAccepted  NotificationType = "exchange_accepted"
	NotificationExchangeDeclined  NotificationType = "exchange_declined"
	NotificationExchangeCanceled  NotificationType = "exchange_canceled"
	NotificationExchangeCompleted NotificationType = "exchange_completed"
	NotificationNewMessage        NotificationType = "new_message"
	NotificationNewRating         NotificationType = "new_rating"
	NotificationSystem            NotificationType = "system"
)

// Valid проверяет, что тип уведомления известен
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationExchangeRequest, NotificationExchangeAccepted, NotificationExchangeDeclined,
		NotificationExchangeCanceled, NotificationExchangeCompleted, NotificationNewMessage,
		NotificationNewRating, NotificationSystem:
		return true
	}
	return false
}

// Notification представляет уведомление для пользователя
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	RelatedID string           `json:"related_id,omitempty"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

func (n Notification) EntityID() string { return n.ID }
