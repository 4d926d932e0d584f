package store

import (
	"errors"
	"testing"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/models"
)

func TestRecordNotificationValidation(t *testing.T) {
	f := newFixture(t, "u1")
	cases := map[string]models.Notification{
		"no user":    {Type: models.NotificationSystem, Title: "t", Message: "m"},
		"no title":   {UserID: "u1", Type: models.NotificationSystem, Message: "m"},
		"no message": {UserID: "u1", Type: models.NotificationSystem, Title: "t"},
		"bad type":   {UserID: "u1", Type: "promo", Title: "t", Message: "m"},
	}
	for name, n := range cases {
		if _, err := f.notifications.Record(f.ctx, n); !apperrors.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if f.backend.Writes(NotificationsCollection) != 0 {
		t.Fatalf("invalid notifications must not be written")
	}
}

func TestNotificationLifecycle(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	f.login(t, "u1")

	for _, title := range []string{"first", "second", "third"} {
		if _, err := f.notifications.Record(f.ctx, models.Notification{UserID: "u1", Type: models.NotificationSystem, Title: title, Message: "body"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	other, err := f.notifications.Record(f.ctx, models.Notification{UserID: "u2", Type: models.NotificationSystem, Title: "theirs", Message: "body"})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, ok := f.notifications.Collection().Get(other.ID); ok {
		t.Fatalf("another user's notification must not enter memory")
	}

	list := f.notifications.UserNotifications("u1")
	if len(list) != 3 || list[0].Title != "third" {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if f.notifications.UnreadCount("u1") != 3 {
		t.Fatalf("expected 3 unread")
	}

	if _, err := f.notifications.MarkAsRead(f.ctx, other.ID); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if _, err := f.notifications.MarkAsRead(f.ctx, list[0].ID); err != nil {
		t.Fatalf("mark as read: %v", err)
	}
	if f.notifications.UnreadCount("u1") != 2 {
		t.Fatalf("expected 2 unread")
	}

	marked, err := f.notifications.MarkAllAsRead(f.ctx)
	if err != nil || marked != 2 {
		t.Fatalf("expected 2 marked, got %d (%v)", marked, err)
	}
	if f.notifications.UnreadCount("u1") != 0 {
		t.Fatalf("expected no unread")
	}

	if err := f.notifications.Delete(f.ctx, list[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.notifications.UserNotifications("u1")) != 2 {
		t.Fatalf("deleted notification must leave memory")
	}
	if _, err := f.source.Get(f.ctx, NotificationsCollection, list[1].ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("deleted notification must leave the remote source, got %v", err)
	}
}
