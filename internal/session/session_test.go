package session

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/identity"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/remote/memory"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

type harness struct {
	ctx      context.Context
	backend  *memory.Backend
	accounts *store.AccountStore
	jwt      *utils.JWTService
	session  *Session
	kv       *cache.Memory
	cache    *cache.Persister
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := memory.New()
	source := remote.NewLive(backend, remote.NewLocalBroker())
	accounts := store.NewAccountStore(store.Deps{Source: source})
	jwt := utils.NewJWTService("test-secret")
	sess := New(accounts, Providers{Password: identity.NewPasswordProvider(source).WithCost(bcrypt.MinCost)}, jwt)

	kv := cache.NewMemory()
	persister := cache.NewPersister(kv, nil)
	persister.Register(sess.Section())
	sess.SetSaver(persister)

	return &harness{ctx: context.Background(), backend: backend, accounts: accounts, jwt: jwt, session: sess, kv: kv, cache: persister}
}

func (h *harness) register(t *testing.T, email, username string) State {
	t.Helper()
	st, err := h.session.Register(h.ctx, RegisterInput{Email: email, Password: "s3cret!", Username: username, DisplayName: "Name " + username})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return st
}

func TestRegisterAuthenticatesAndPersists(t *testing.T) {
	h := newHarness(t)
	var seen []Status
	h.session.Watch(func(st State) { seen = append(seen, st.Status) })

	st := h.register(t, "ann@example.com", "ann")
	if st.Status != StatusAuthenticated || st.User == nil || st.User.Username != "ann" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if len(seen) != 2 || seen[0] != StatusAuthenticating || seen[1] != StatusAuthenticated {
		t.Fatalf("unexpected transitions: %v", seen)
	}
	userID, err := h.jwt.ExtractUserID(st.Token)
	if err != nil || userID != st.User.ID {
		t.Fatalf("token must carry the user id: %v", err)
	}
	raw, ok, _ := h.kv.Get(h.ctx, cache.KeyAuth)
	if !ok || raw == "" {
		t.Fatalf("session must be persisted")
	}
}

func TestRegisterFailureKeepsPreviousState(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ann@example.com", "ann")
	h.session.Logout(h.ctx)

	st, err := h.session.Register(h.ctx, RegisterInput{Email: "bob@example.com", Password: "s3cret!", Username: "ann", DisplayName: "Bob"})
	if !errors.Is(err, apperrors.ErrAlreadyExists) {
		t.Fatalf("expected taken username, got %v", err)
	}
	if st.Status != StatusAnonymous || st.Error == "" {
		t.Fatalf("expected anonymous with error, got %+v", st)
	}
	if h.session.Err() == nil {
		t.Fatalf("error field must be set")
	}

	if _, err := h.session.Register(h.ctx, RegisterInput{Email: "ann@example.com", Password: "s3cret!", Username: "ann2", DisplayName: "Ann"}); !errors.Is(err, identity.ErrEmailTaken) {
		t.Fatalf("expected taken email, got %v", err)
	}
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t)
	registered := h.register(t, "ann@example.com", "ann")
	h.session.Logout(h.ctx)
	if h.session.Authenticated() {
		t.Fatalf("expected anonymous after logout")
	}
	if _, ok := h.session.CurrentAccount(); ok {
		t.Fatalf("no account after logout")
	}

	if _, err := h.session.Login(h.ctx, "ann@example.com", "nope"); !errors.Is(err, identity.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if h.session.State().Status != StatusAnonymous {
		t.Fatalf("failed login must return to anonymous")
	}

	st, err := h.session.Login(h.ctx, "ANN@example.com", "s3cret!")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if st.User.ID != registered.User.ID {
		t.Fatalf("expected the registered account")
	}
}

func TestUserSwitchRunsLogoutHooksBeforeLogin(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ann@example.com", "ann")
	h.session.Logout(h.ctx)
	h.register(t, "bob@example.com", "bob")

	var events []string
	h.session.OnLogout(func(prev models.Account) { events = append(events, "logout:"+prev.Username) })
	h.session.OnLogin(func(_ context.Context, acc models.Account) { events = append(events, "login:"+acc.Username) })

	if _, err := h.session.Login(h.ctx, "ann@example.com", "s3cret!"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if len(events) != 2 || events[0] != "logout:bob" || events[1] != "login:ann" {
		t.Fatalf("unexpected hook order: %v", events)
	}
}

func TestLogoutHooksSeeSignedOutSession(t *testing.T) {
	h := newHarness(t)
	st := h.register(t, "ann@example.com", "ann")

	var prevID string
	var authenticated, hasAccount bool
	h.session.OnLogout(func(prev models.Account) {
		prevID = prev.ID
		authenticated = h.session.Authenticated()
		_, hasAccount = h.session.CurrentAccount()
	})
	h.session.Logout(h.ctx)

	if prevID != st.User.ID {
		t.Fatalf("hook must receive the signed-out account, got %q", prevID)
	}
	if authenticated || hasAccount {
		t.Fatalf("session must leave authenticated before logout hooks run")
	}
}

func TestSyncProfileReplacesCachedAccount(t *testing.T) {
	h := newHarness(t)
	st := h.register(t, "ann@example.com", "ann")

	if _, err := h.accounts.UpdateFields(h.ctx, st.User.ID, remote.Patch{"bio": "Go developer"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := h.session.SyncProfile(h.ctx, st.User.ID); err != nil {
		t.Fatalf("sync: %v", err)
	}
	acc, _ := h.session.CurrentAccount()
	if acc.Bio != "Go developer" {
		t.Fatalf("expected synced bio, got %q", acc.Bio)
	}
}

func TestRestoreFromCacheAndConfirm(t *testing.T) {
	h := newHarness(t)
	st := h.register(t, "ann@example.com", "ann")

	restored := New(h.accounts, Providers{}, h.jwt)
	reader := cache.NewPersister(h.kv, nil)
	reader.Register(restored.Section())
	if _, err := reader.Load(h.ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	acc, ok := restored.CurrentAccount()
	if !ok || acc.ID != st.User.ID {
		t.Fatalf("expected restored account, got %+v", acc)
	}

	logins := 0
	restored.OnLogin(func(context.Context, models.Account) { logins++ })
	if err := restored.Confirm(h.ctx); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if logins != 1 {
		t.Fatalf("confirmed session must start login hooks")
	}
}

func TestConfirmInvalidatesForeignToken(t *testing.T) {
	h := newHarness(t)
	h.register(t, "ann@example.com", "ann")

	other := New(h.accounts, Providers{}, utils.NewJWTService("other-secret"))
	reader := cache.NewPersister(h.kv, nil)
	reader.Register(other.Section())
	if _, err := reader.Load(h.ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := other.Confirm(h.ctx); !errors.Is(err, apperrors.ErrNotAuthenticated) {
		t.Fatalf("expected invalidated session, got %v", err)
	}
	if other.Authenticated() {
		t.Fatalf("session must be anonymous after invalidation")
	}
}

func TestConcurrentLoginRejected(t *testing.T) {
	h := newHarness(t)
	if _, err := h.session.begin("test"); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := h.session.Login(h.ctx, "ann@example.com", "s3cret!"); !errors.Is(err, apperrors.ErrInFlight) {
		t.Fatalf("expected in-flight rejection, got %v", err)
	}
}
