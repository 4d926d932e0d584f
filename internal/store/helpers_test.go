package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/remote/memory"
)

type fakeSession struct {
	mu       sync.Mutex
	accounts *AccountStore
	current  models.Account
	ok       bool
	syncs    int
}

func (f *fakeSession) CurrentAccount() (models.Account, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.ok
}

func (f *fakeSession) SyncProfile(ctx context.Context, id string) error {
	acc, err := f.accounts.Fetch(ctx, id)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs++
	if f.ok && f.current.ID == id {
		f.current = acc
	}
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	created  []models.Exchange
	statuses []models.Exchange
	actors   []string
	messages []models.Message
	ratings  []models.Rating
	skills   []models.Skill
}

func (r *recordingNotifier) ExchangeCreated(_ context.Context, ex models.Exchange, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, ex)
	r.actors = append(r.actors, actorID)
}

func (r *recordingNotifier) ExchangeStatusChanged(_ context.Context, ex models.Exchange, actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, ex)
	r.actors = append(r.actors, actorID)
}

func (r *recordingNotifier) MessageSent(_ context.Context, msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recordingNotifier) RatingSubmitted(_ context.Context, rating models.Rating) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ratings = append(r.ratings, rating)
}

func (r *recordingNotifier) SkillAdded(_ context.Context, skill models.Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills = append(r.skills, skill)
}

type fixture struct {
	ctx           context.Context
	backend       *memory.Backend
	source        remote.Source
	session       *fakeSession
	notifier      *recordingNotifier
	accounts      *AccountStore
	skills        *SkillStore
	exchanges     *ExchangeStore
	messages      *MessageStore
	notifications *NotificationStore
	ratings       *RatingStore
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()

	backend := memory.New()
	source := remote.NewLive(backend, remote.NewLocalBroker())
	session := &fakeSession{}
	notifier := &recordingNotifier{}

	var mu sync.Mutex
	clock := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	seq := 0
	deps := Deps{
		Source:   source,
		Session:  session,
		Notifier: notifier,
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
		NewID: func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("id-%03d", seq)
		},
	}

	f := &fixture{ctx: context.Background(), backend: backend, source: source, session: session, notifier: notifier}
	f.accounts = NewAccountStore(deps)
	session.accounts = f.accounts
	f.skills = NewSkillStore(deps)
	f.exchanges = NewExchangeStore(deps, f.accounts)
	f.messages = NewMessageStore(deps)
	f.notifications = NewNotificationStore(deps)
	f.ratings = NewRatingStore(deps, f.accounts, f.exchanges)

	for _, id := range users {
		if _, err := f.accounts.Create(f.ctx, models.Account{ID: id, Username: id, Email: id + "@example.com", DisplayName: "User " + id}); err != nil {
			t.Fatalf("failed to seed account %s: %v", id, err)
		}
	}
	return f
}

func (f *fixture) login(t *testing.T, id string) {
	t.Helper()
	acc, err := f.accounts.Fetch(f.ctx, id)
	if err != nil {
		t.Fatalf("failed to login as %s: %v", id, err)
	}
	f.session.mu.Lock()
	f.session.current = acc
	f.session.ok = true
	f.session.mu.Unlock()
}

func (f *fixture) logout() {
	f.session.mu.Lock()
	f.session.current = models.Account{}
	f.session.ok = false
	f.session.mu.Unlock()
}

func (f *fixture) account(t *testing.T, id string) models.Account {
	t.Helper()
	acc, err := f.accounts.Fetch(f.ctx, id)
	if err != nil {
		t.Fatalf("failed to fetch account %s: %v", id, err)
	}
	return acc
}

func (f *fixture) proposeExchange(t *testing.T, from, to string) models.Exchange {
	t.Helper()
	f.login(t, from)
	ex, err := f.exchanges.Create(f.ctx, ExchangeDraft{
		RecipientID:      to,
		InitiatorSkillID: "s1",
		RecipientSkillID: "s2",
		ProposedDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ProposedTime:     "18:00",
		Duration:         60,
		Location:         "Online",
	})
	if err != nil {
		t.Fatalf("failed to propose exchange: %v", err)
	}
	return ex
}

func (f *fixture) completedExchange(t *testing.T, from, to string) models.Exchange {
	t.Helper()
	ex := f.proposeExchange(t, from, to)
	f.login(t, to)
	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted); err != nil {
		t.Fatalf("failed to accept: %v", err)
	}
	done, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusCompleted)
	if err != nil {
		t.Fatalf("failed to complete: %v", err)
	}
	return done
}

type testItem struct {
	ID    string `json:"id"`
	Value string `json:"value"`
}

func (i testItem) EntityID() string { return i.ID }
