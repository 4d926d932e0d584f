package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

func TestProposeExchangeCreatesPendingAndNotifiesOnce(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.proposeExchange(t, "u1", "u2")

	if ex.Status != models.StatusPending || ex.InitiatorID != "u1" || ex.RecipientID != "u2" {
		t.Fatalf("unexpected exchange: %+v", ex)
	}
	if ex.CompletedAt != nil {
		t.Fatalf("pending exchange must not have completed_at")
	}
	if len(f.notifier.created) != 1 || f.notifier.created[0].ID != ex.ID {
		t.Fatalf("expected exactly one creation fan-out, got %d", len(f.notifier.created))
	}
	if got := f.exchanges.GetPending("u2"); len(got) != 1 {
		t.Fatalf("expected pending exchange for recipient, got %d", len(got))
	}
}

func TestProposeExchangeValidation(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	f.login(t, "u1")
	valid := ExchangeDraft{
		RecipientID: "u2", InitiatorSkillID: "s1", RecipientSkillID: "s2",
		ProposedDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), Duration: 60, Location: "Online",
	}

	cases := map[string]func(d *ExchangeDraft){
		"self":          func(d *ExchangeDraft) { d.RecipientID = "u1" },
		"no recipient":  func(d *ExchangeDraft) { d.RecipientID = "" },
		"no skill":      func(d *ExchangeDraft) { d.RecipientSkillID = "" },
		"zero duration": func(d *ExchangeDraft) { d.Duration = 0 },
		"no date":       func(d *ExchangeDraft) { d.ProposedDate = time.Time{} },
		"no location":   func(d *ExchangeDraft) { d.Location = " " },
	}
	for name, mutate := range cases {
		draft := valid
		mutate(&draft)
		if _, err := f.exchanges.Create(f.ctx, draft); !apperrors.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
	if f.backend.Writes(ExchangesCollection) != 0 {
		t.Fatalf("validation failures must not reach the remote source")
	}
}

func TestAcceptExchangeKeepsCounters(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.proposeExchange(t, "u1", "u2")

	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("initiator must not accept, got %v", err)
	}

	f.login(t, "u2")
	accepted, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted.Status != models.StatusAccepted || accepted.CompletedAt != nil {
		t.Fatalf("unexpected exchange: %+v", accepted)
	}
	if len(f.notifier.statuses) != 1 || f.notifier.actors[len(f.notifier.actors)-1] != "u2" {
		t.Fatalf("expected one status fan-out by u2, got %d", len(f.notifier.statuses))
	}
	for _, id := range []string{"u1", "u2"} {
		if acc := f.account(t, id); acc.CompletedExchanges != 0 {
			t.Fatalf("%s counter must stay 0, got %d", id, acc.CompletedExchanges)
		}
	}
}

func TestCompleteExchangeSetsCompletedAtAndCounters(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.completedExchange(t, "u1", "u2")

	if ex.Status != models.StatusCompleted || ex.CompletedAt == nil {
		t.Fatalf("completed exchange must have completed_at: %+v", ex)
	}
	remoteEx, err := f.exchanges.Fetch(f.ctx, ex.ID)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if remoteEx.CompletedAt == nil || !remoteEx.CompletedAt.Equal(*ex.CompletedAt) {
		t.Fatalf("remote completed_at mismatch: %+v", remoteEx.CompletedAt)
	}
	for _, id := range []string{"u1", "u2"} {
		if acc := f.account(t, id); acc.CompletedExchanges != 1 {
			t.Fatalf("%s counter must be 1, got %d", id, acc.CompletedExchanges)
		}
	}
	if got := f.exchanges.GetCompleted("u1"); len(got) != 1 {
		t.Fatalf("expected one completed exchange, got %d", len(got))
	}

	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusCanceled); !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("terminal exchange must not change, got %v", err)
	}
}

func TestCompletedAtOnlyWhileCompleted(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.proposeExchange(t, "u1", "u2")
	f.login(t, "u2")

	for _, status := range []models.ExchangeStatus{models.StatusAccepted, models.StatusInProgress, models.StatusCanceled} {
		updated, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, status)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", status, err)
		}
		if updated.CompletedAt != nil {
			t.Fatalf("%s must not carry completed_at", status)
		}
		remoteEx, _ := f.exchanges.Fetch(f.ctx, ex.ID)
		if remoteEx.CompletedAt != nil {
			t.Fatalf("remote %s must not carry completed_at", status)
		}
	}
}

func TestUpdateStatusRejectsOutsiders(t *testing.T) {
	f := newFixture(t, "u1", "u2", "u3")
	ex := f.proposeExchange(t, "u1", "u2")

	f.login(t, "u3")
	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusCanceled); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestUpdateStatusInFlightGuard(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.proposeExchange(t, "u1", "u2")
	f.login(t, "u2")

	done, err := f.exchanges.Collection().Begin(Fingerprint(ex.ID, "status"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted); !errors.Is(err, apperrors.ErrInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
	done()
	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted); err != nil {
		t.Fatalf("expected success after guard release: %v", err)
	}
}

// staleSource отдает первому Get обмена сохраненную копию и задерживает ответ до release
type staleSource struct {
	remote.Source
	stale   remote.Document
	entered chan struct{}
	release chan struct{}
	calls   int
}

func (s *staleSource) Get(ctx context.Context, collection, id string) (remote.Document, error) {
	if collection != ExchangesCollection {
		return s.Source.Get(ctx, collection, id)
	}
	s.calls++
	if s.calls > 1 {
		return s.Source.Get(ctx, collection, id)
	}
	close(s.entered)
	<-s.release
	return s.stale, nil
}

func TestConcurrentCompletionAppliesOnce(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.proposeExchange(t, "u1", "u2")
	f.login(t, "u2")
	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted); err != nil {
		t.Fatalf("accept: %v", err)
	}
	accepted, err := f.source.Get(f.ctx, ExchangesCollection, ex.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	src := &staleSource{Source: f.source, stale: accepted, entered: make(chan struct{}), release: make(chan struct{})}
	exchanges := NewExchangeStore(Deps{Source: src, Session: f.session, Notifier: f.notifier}, f.accounts)

	first := make(chan error, 1)
	go func() {
		_, err := exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusCompleted)
		first <- err
	}()
	<-src.entered

	_, secondErr := exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusCompleted)
	close(src.release)
	firstErr := <-first

	if (firstErr == nil) == (secondErr == nil) {
		t.Fatalf("exactly one completion must succeed, got %v and %v", firstErr, secondErr)
	}
	if _, err := exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusCompleted); err == nil {
		t.Fatalf("completed exchange must not complete again")
	}
	for _, id := range []string{"u1", "u2"} {
		if acc := f.account(t, id); acc.CompletedExchanges != 1 {
			t.Fatalf("%s counter must be 1, got %d", id, acc.CompletedExchanges)
		}
	}
	completions := 0
	for _, changed := range f.notifier.statuses {
		if changed.Status == models.StatusCompleted {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("expected one completion fan-out, got %d", completions)
	}
}

func TestUpdateStatusRemoteFailure(t *testing.T) {
	f := newFixture(t, "u1", "u2")
	ex := f.proposeExchange(t, "u1", "u2")
	f.login(t, "u2")
	f.backend.FailWrites(ExchangesCollection, errors.New("permission denied"))

	if _, err := f.exchanges.UpdateStatus(f.ctx, ex.ID, models.StatusAccepted); apperrors.KindOf(err) != apperrors.KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
	if got, _ := f.exchanges.GetByID(ex.ID); got.Status != models.StatusPending {
		t.Fatalf("local state must stay pending, got %s", got.Status)
	}
	if f.exchanges.Collection().Err() == nil {
		t.Fatalf("store error must be set")
	}
	if len(f.notifier.statuses) != 0 {
		t.Fatalf("failed write must not fan out")
	}
}

func TestTransitionTable(t *testing.T) {
	ex := models.Exchange{InitiatorID: "u1", RecipientID: "u2"}
	cases := []struct {
		from   models.ExchangeStatus
		to     models.ExchangeStatus
		actor  string
		wantOK bool
	}{
		{models.StatusPending, models.StatusAccepted, "u2", true},
		{models.StatusPending, models.StatusAccepted, "u1", false},
		{models.StatusPending, models.StatusDeclined, "u2", true},
		{models.StatusPending, models.StatusDeclined, "u1", false},
		{models.StatusPending, models.StatusCanceled, "u1", true},
		{models.StatusPending, models.StatusCompleted, "u2", false},
		{models.StatusAccepted, models.StatusInProgress, "u1", true},
		{models.StatusAccepted, models.StatusCompleted, "u2", true},
		{models.StatusInProgress, models.StatusCompleted, "u1", true},
		{models.StatusInProgress, models.StatusAccepted, "u1", false},
		{models.StatusDeclined, models.StatusAccepted, "u2", false},
		{models.StatusCompleted, models.StatusCanceled, "u1", false},
		{models.StatusAccepted, models.StatusCanceled, "u3", false},
	}
	for _, c := range cases {
		ex.Status = c.from
		err := CanTransition(ex, c.to, c.actor)
		if (err == nil) != c.wantOK {
			t.Fatalf("%s -> %s by %s: expected ok=%v, got %v", c.from, c.to, c.actor, c.wantOK, err)
		}
	}

	ex.Status = models.StatusPending
	if got := AllowedTransitions(ex, "u1"); len(got) != 1 || got[0] != models.StatusCanceled {
		t.Fatalf("initiator may only cancel a pending exchange, got %v", got)
	}
}
