package fanout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rajivgeraev/skillswap-api/internal/fanout"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/remote/memory"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

type session struct {
	mu      sync.Mutex
	current models.Account
}

func (s *session) CurrentAccount() (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current.ID != ""
}

func (s *session) SyncProfile(context.Context, string) error { return nil }

func (s *session) as(id string) {
	s.mu.Lock()
	s.current = models.Account{ID: id, Username: id}
	s.mu.Unlock()
}

type env struct {
	ctx       context.Context
	backend   *memory.Backend
	source    remote.Source
	session   *session
	accounts  *store.AccountStore
	exchanges *store.ExchangeStore
	messages  *store.MessageStore
}

func newEnv(t *testing.T) *env {
	t.Helper()
	backend := memory.New()
	source := remote.NewLive(backend, remote.NewLocalBroker())
	sess := &session{}

	base := store.Deps{Source: source, Session: sess}
	accounts := store.NewAccountStore(base)
	notifications := store.NewNotificationStore(base)

	deps := base
	deps.Notifier = fanout.NewDispatcher(notifications, accounts, nil)

	e := &env{
		ctx:       context.Background(),
		backend:   backend,
		source:    source,
		session:   sess,
		accounts:  accounts,
		exchanges: store.NewExchangeStore(deps, accounts),
		messages:  store.NewMessageStore(deps),
	}
	for _, id := range []string{"u1", "u2", "u3"} {
		if _, err := accounts.Create(e.ctx, models.Account{ID: id, Username: id, DisplayName: "Name " + id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	return e
}

func (e *env) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	docs, err := e.source.Query(e.ctx, remote.Collection(store.NotificationsCollection).Where("user_id", remote.OpEqual, userID))
	if err != nil {
		t.Fatalf("query notifications: %v", err)
	}
	out := make([]models.Notification, 0, len(docs))
	for _, doc := range docs {
		var n models.Notification
		if err := doc.Decode(&n); err != nil {
			t.Fatalf("decode: %v", err)
		}
		out = append(out, n)
	}
	return out
}

func (e *env) propose(t *testing.T) models.Exchange {
	t.Helper()
	e.session.as("u1")
	ex, err := e.exchanges.Create(e.ctx, store.ExchangeDraft{
		RecipientID: "u2", InitiatorSkillID: "s1", RecipientSkillID: "s2",
		ProposedDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Duration: 45, Location: "Cafe",
	})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	return ex
}

func countType(list []models.Notification, typ models.NotificationType) int {
	n := 0
	for _, item := range list {
		if item.Type == typ {
			n++
		}
	}
	return n
}

func TestProposeAcceptCompleteScenario(t *testing.T) {
	e := newEnv(t)
	ex := e.propose(t)

	u2 := e.notificationsFor(t, "u2")
	if len(u2) != 1 || u2[0].Type != models.NotificationExchangeRequest {
		t.Fatalf("expected one exchange_request for u2, got %+v", u2)
	}
	if u2[0].Title != "New Exchange Request" || u2[0].Message != "Name u1 proposed an exchange" || u2[0].RelatedID != ex.ID {
		t.Fatalf("unexpected notification text: %+v", u2[0])
	}
	if len(e.notificationsFor(t, "u1")) != 0 {
		t.Fatalf("initiator must not be notified of own proposal")
	}

	e.session.as("u2")
	if _, err := e.exchanges.UpdateStatus(e.ctx, ex.ID, models.StatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	u1 := e.notificationsFor(t, "u1")
	if countType(u1, models.NotificationExchangeAccepted) != 1 {
		t.Fatalf("expected one exchange_accepted for u1, got %+v", u1)
	}

	if _, err := e.exchanges.UpdateStatus(e.ctx, ex.ID, models.StatusInProgress); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(e.notificationsFor(t, "u1")) + len(e.notificationsFor(t, "u2")); got != 2 {
		t.Fatalf("in_progress must not notify, total %d", got)
	}

	if _, err := e.exchanges.UpdateStatus(e.ctx, ex.ID, models.StatusCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	u1 = e.notificationsFor(t, "u1")
	if countType(u1, models.NotificationExchangeCompleted) != 1 {
		t.Fatalf("non-acting initiator must get exchange_completed, got %+v", u1)
	}
	if countType(e.notificationsFor(t, "u2"), models.NotificationExchangeCompleted) != 0 {
		t.Fatalf("actor must not be notified of own completion")
	}
	for _, n := range u1 {
		if n.Type == models.NotificationExchangeCompleted && n.Title != "Exchange Completed" {
			t.Fatalf("unexpected title %q", n.Title)
		}
	}
}

func TestDeclineNotifiesInitiator(t *testing.T) {
	e := newEnv(t)
	ex := e.propose(t)
	e.session.as("u2")
	if _, err := e.exchanges.UpdateStatus(e.ctx, ex.ID, models.StatusDeclined); err != nil {
		t.Fatalf("decline: %v", err)
	}
	u1 := e.notificationsFor(t, "u1")
	if len(u1) != 1 || u1[0].Type != models.NotificationExchangeDeclined || u1[0].Message != "Name u2 declined your exchange request" {
		t.Fatalf("unexpected notifications: %+v", u1)
	}
}

func TestCancelByInitiatorNotifiesRecipient(t *testing.T) {
	e := newEnv(t)
	ex := e.propose(t)
	if _, err := e.exchanges.UpdateStatus(e.ctx, ex.ID, models.StatusCanceled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if countType(e.notificationsFor(t, "u2"), models.NotificationExchangeCanceled) != 1 {
		t.Fatalf("recipient must be notified of cancel")
	}
	if len(e.notificationsFor(t, "u1")) != 0 {
		t.Fatalf("actor must not be notified")
	}
}

func TestStatusByOutsiderNotifiesBoth(t *testing.T) {
	var rec recorder
	d := fanout.NewDispatcher(&rec, nil, nil)
	ex := models.Exchange{ID: "e1", InitiatorID: "u1", RecipientID: "u2", Status: models.StatusCanceled}

	d.ExchangeStatusChanged(context.Background(), ex, "admin")
	if len(rec.items) != 2 || rec.items[0].UserID != "u1" || rec.items[1].UserID != "u2" {
		t.Fatalf("expected both participants, got %+v", rec.items)
	}
	if rec.items[0].Message != "Someone canceled the exchange" {
		t.Fatalf("expected fallback name, got %q", rec.items[0].Message)
	}
}

func TestMessageFanOut(t *testing.T) {
	e := newEnv(t)
	e.session.as("u1")
	if _, err := e.messages.Send(e.ctx, store.MessageDraft{ReceiverID: "u2", Content: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := e.messages.Send(e.ctx, store.MessageDraft{ReceiverID: "u1", Content: "self"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	u2 := e.notificationsFor(t, "u2")
	if len(u2) != 1 || u2[0].Title != "New Message" || u2[0].RelatedID != "u1-u2" {
		t.Fatalf("unexpected notifications: %+v", u2)
	}
	if len(e.notificationsFor(t, "u1")) != 0 {
		t.Fatalf("self message must not notify")
	}
}

func TestFanOutFailureDoesNotFailMutation(t *testing.T) {
	e := newEnv(t)
	e.backend.FailWrites(store.NotificationsCollection, errors.New("quota exceeded"))

	ex := e.propose(t)
	if ex.Status != models.StatusPending {
		t.Fatalf("exchange must be created despite fan-out failure")
	}
	if _, err := e.source.Get(e.ctx, store.ExchangesCollection, ex.ID); err != nil {
		t.Fatalf("exchange must be written: %v", err)
	}
}

func TestRatingAndSkillFanOut(t *testing.T) {
	var rec recorder
	d := fanout.NewDispatcher(&rec, nil, nil)
	ctx := context.Background()

	d.RatingSubmitted(ctx, models.Rating{Kind: models.RatingOfExchange, ExchangeID: "e1", ReviewerID: "u1"})
	d.RatingSubmitted(ctx, models.Rating{Kind: models.RatingOfUser, ExchangeID: "e1", ReviewerID: "u1", TargetUserID: "u2", Score: 5})
	d.SkillAdded(ctx, models.Skill{UserID: "u1", Name: "Go", IsOffered: true})

	if len(rec.items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(rec.items))
	}
	if rec.items[0].Type != models.NotificationNewRating || rec.items[0].UserID != "u2" || rec.items[0].Title != "New Rating Received" {
		t.Fatalf("unexpected rating notification: %+v", rec.items[0])
	}
	if rec.items[1].Type != models.NotificationSystem || rec.items[1].UserID != "u1" || rec.items[1].Message != "Someone added a new offered skill: Go" {
		t.Fatalf("unexpected skill notification: %+v", rec.items[1])
	}
}

type recorder struct {
	items []models.Notification
}

func (r *recorder) Record(_ context.Context, n models.Notification) (models.Notification, error) {
	r.items = append(r.items, n)
	return n, nil
}
