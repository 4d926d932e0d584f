package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/subscription"
)

// NotificationStore хранит уведомления текущего пользователя
type NotificationStore struct {
	deps Deps
	coll *Collection[models.Notification]
}

// NewNotificationStore создает новый экземпляр NotificationStore
func NewNotificationStore(d Deps) *NotificationStore {
	d = d.withDefaults()
	coll := NewCollection("notifications", func(a, b models.Notification) bool { return a.CreatedAt.After(b.CreatedAt) }, d.Metrics)
	coll.OnCommit(d.persistHook("notifications"))
	return &NotificationStore{deps: d, coll: coll}
}

// Collection возвращает коллекцию уведомлений
func (s *NotificationStore) Collection() *Collection[models.Notification] { return s.coll }

// Section возвращает раздел снимка кэша
func (s *NotificationStore) Section() cache.Section {
	return section[models.Notification]{key: cache.KeyNotifications, field: "notifications", coll: s.coll}
}

// UserScope все уведомления пользователя, новые первыми
func (s *NotificationStore) UserScope(userID string) subscription.Scope {
	return subscription.Scope{
		Name: "notifications",
		Sink: s.coll,
		Queries: []remote.Query{
			remote.Collection(NotificationsCollection).
				Where("user_id", remote.OpEqual, userID).
				OrderedBy("created_at", true),
		},
		Complete: true,
	}
}

// Record записывает уведомление для пользователя n.UserID
func (s *NotificationStore) Record(ctx context.Context, n models.Notification) (models.Notification, error) {
	const op = "notifications.create"
	switch {
	case n.UserID == "":
		return models.Notification{}, apperrors.Required(op, "user_id")
	case strings.TrimSpace(n.Title) == "":
		return models.Notification{}, apperrors.Required(op, "title")
	case strings.TrimSpace(n.Message) == "":
		return models.Notification{}, apperrors.Required(op, "message")
	case !n.Type.Valid():
		return models.Notification{}, apperrors.Invalid(op, "type", fmt.Sprintf("unknown notification type %q", n.Type))
	}

	n.ID = s.deps.NewID()
	n.IsRead = false
	n.CreatedAt = s.deps.Now()

	err := s.deps.Source.Create(ctx, NotificationsCollection, n.ID, n)
	s.deps.Metrics.Mutation("notifications", "create", err)
	if err != nil {
		return models.Notification{}, apperrors.Remote(op, err)
	}
	if s.deps.Session != nil {
		if acc, ok := s.deps.Session.CurrentAccount(); ok && acc.ID == n.UserID {
			s.coll.Put(n)
		}
	}
	return n, nil
}

// MarkAsRead отмечает уведомление прочитанным
func (s *NotificationStore) MarkAsRead(ctx context.Context, id string) (models.Notification, error) {
	const op = "notifications.read"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Notification{}, err
	}
	n, err := s.load(ctx, op, id)
	if err != nil {
		return models.Notification{}, err
	}
	if n.UserID != acc.ID {
		return models.Notification{}, apperrors.Validation(op, apperrors.ErrForbidden)
	}
	if n.IsRead {
		return n, nil
	}

	err = s.deps.Source.Update(ctx, NotificationsCollection, id, remote.Patch{"is_read": true})
	s.deps.Metrics.Mutation("notifications", "read", err)
	if err != nil {
		return models.Notification{}, remoteFailure(s.coll, op, err)
	}
	n.IsRead = true
	s.coll.Put(n)
	return n, nil
}

// MarkAllAsRead отмечает прочитанными все уведомления текущего пользователя
func (s *NotificationStore) MarkAllAsRead(ctx context.Context) (int, error) {
	const op = "notifications.read_all"
	acc, err := s.deps.actor(op)
	if err != nil {
		return 0, err
	}

	done, err := s.coll.Begin(Fingerprint(acc.ID, "read-all"))
	if err != nil {
		return 0, err
	}
	defer done()

	marked := 0
	for _, n := range s.coll.Select(func(n models.Notification) bool { return n.UserID == acc.ID && !n.IsRead }) {
		err := s.deps.Source.Update(ctx, NotificationsCollection, n.ID, remote.Patch{"is_read": true})
		s.deps.Metrics.Mutation("notifications", "read", err)
		if err != nil {
			return marked, remoteFailure(s.coll, op, err)
		}
		n.IsRead = true
		s.coll.Put(n)
		marked++
	}
	return marked, nil
}

// Delete удаляет уведомление текущего пользователя
func (s *NotificationStore) Delete(ctx context.Context, id string) error {
	const op = "notifications.delete"
	acc, err := s.deps.actor(op)
	if err != nil {
		return err
	}
	n, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if n.UserID != acc.ID {
		return apperrors.Validation(op, apperrors.ErrForbidden)
	}

	err = s.deps.Source.Delete(ctx, NotificationsCollection, id)
	s.deps.Metrics.Mutation("notifications", "delete", err)
	if err != nil {
		return remoteFailure(s.coll, op, err)
	}
	s.coll.Remove(id)
	return nil
}

// UserNotifications возвращает уведомления пользователя, новые первыми
func (s *NotificationStore) UserNotifications(userID string) []models.Notification {
	return s.coll.Select(func(n models.Notification) bool { return n.UserID == userID })
}

// UnreadCount возвращает количество непрочитанных уведомлений
func (s *NotificationStore) UnreadCount(userID string) int {
	return len(s.coll.Select(func(n models.Notification) bool { return n.UserID == userID && !n.IsRead }))
}

func (s *NotificationStore) load(ctx context.Context, op, id string) (models.Notification, error) {
	if id == "" {
		return models.Notification{}, apperrors.Required(op, "id")
	}
	if n, ok := s.coll.Get(id); ok {
		return n, nil
	}
	doc, err := s.deps.Source.Get(ctx, NotificationsCollection, id)
	if err != nil {
		return models.Notification{}, apperrors.Remote(op, err)
	}
	var n models.Notification
	if err := doc.Decode(&n); err != nil {
		return models.Notification{}, apperrors.Remote(op, err)
	}
	return n, nil
}
