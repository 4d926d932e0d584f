// Package session владеет личностью текущего пользователя: вход, регистрация,
// выход и восстановление последней сессии из локального кэша.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/identity"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

// Status состояние сессии
type Status string

const (
	StatusAnonymous      Status = "anonymous"
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
)

// State снимок сессии для UI
type State struct {
	Status Status          `json:"status"`
	User   *models.Account `json:"user,omitempty"`
	Token  string          `json:"token,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RegisterInput данные регистрации
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// Providers способы входа
type Providers struct {
	Password *identity.PasswordProvider
	Telegram identity.Provider
}

// Session конечный автомат anonymous -> authenticating -> authenticated
type Session struct {
	accounts  *store.AccountStore
	providers Providers
	jwt       *utils.JWTService
	saver     store.Saver

	mu        sync.RWMutex
	status    Status
	user      *models.Account
	token     string
	err       error
	listeners map[int]func(State)
	nextID    int
	onLogin   []func(ctx context.Context, acc models.Account)
	onLogout  []func(prev models.Account)
}

// New создает анонимную сессию
func New(accounts *store.AccountStore, providers Providers, jwt *utils.JWTService) *Session {
	return &Session{
		accounts:  accounts,
		providers: providers,
		jwt:       jwt,
		status:    StatusAnonymous,
		listeners: make(map[int]func(State)),
	}
}

// SetSaver задает запись снимка кэша после переходов
func (s *Session) SetSaver(saver store.Saver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saver = saver
}

// OnLogin регистрирует действие после успешного входа
func (s *Session) OnLogin(fn func(ctx context.Context, acc models.Account)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogin = append(s.onLogin, fn)
}

// OnLogout регистрирует действие при смене или сбросе пользователя.
// К вызову сессия уже не аутентифицирована; prev содержит прежний профиль.
func (s *Session) OnLogout(fn func(prev models.Account)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

// CurrentAccount возвращает профиль аутентифицированного пользователя
func (s *Session) CurrentAccount() (models.Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusAuthenticated || s.user == nil {
		return models.Account{}, false
	}
	return *s.user, true
}

// Authenticated разрешает открытие подписок
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusAuthenticated
}

// Token возвращает токен текущей сессии
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// State возвращает снимок сессии
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

// Err возвращает ошибку последней операции
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Watch подписывает fn на смену состояния
func (s *Session) Watch(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Register создает учетные данные и профиль, затем входит
func (s *Session) Register(ctx context.Context, in RegisterInput) (State, error) {
	const op = "session.register"
	prev, err := s.begin(op)
	if err != nil {
		return s.State(), err
	}

	acc, err := s.register(ctx, op, in)
	if err != nil {
		return s.fail(prev, err)
	}
	return s.succeed(ctx, prev, acc)
}

func (s *Session) register(ctx context.Context, op string, in RegisterInput) (models.Account, error) {
	if s.providers.Password == nil {
		return models.Account{}, apperrors.Validation(op, fmt.Errorf("%w: password login is disabled", apperrors.ErrForbidden))
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return models.Account{}, apperrors.Required(op, "username")
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" {
		return models.Account{}, apperrors.Required(op, "display_name")
	}

	taken, err := s.accounts.UsernameTaken(ctx, username)
	if err != nil {
		return models.Account{}, err
	}
	if taken {
		return models.Account{}, apperrors.Validation(op, fmt.Errorf("%w: username %q is taken", apperrors.ErrAlreadyExists, username))
	}

	userID, err := s.providers.Password.Enroll(ctx, in.Email, in.Password)
	if err != nil {
		return models.Account{}, err
	}
	acc, err := s.accounts.Create(ctx, models.Account{
		ID:          userID,
		Username:    username,
		Email:       identity.NormalizeEmail(in.Email),
		DisplayName: displayName,
	})
	if err != nil {
		if wErr := s.providers.Password.Withdraw(ctx, in.Email); wErr != nil {
			log.Error().Err(wErr).Str("user_id", userID).Msg("не удалось удалить учетные данные после ошибки регистрации")
		}
		return models.Account{}, err
	}
	return acc, nil
}

// Login входит по email и паролю
func (s *Session) Login(ctx context.Context, email, password string) (State, error) {
	const op = "session.login"
	prev, err := s.begin(op)
	if err != nil {
		return s.State(), err
	}
	if s.providers.Password == nil {
		return s.fail(prev, apperrors.Validation(op, fmt.Errorf("%w: password login is disabled", apperrors.ErrForbidden)))
	}

	id, err := s.providers.Password.Authenticate(ctx, identity.Credentials{Email: email, Password: password})
	if err != nil {
		return s.fail(prev, err)
	}
	acc, err := s.accounts.Fetch(ctx, id.UserID)
	if err != nil {
		return s.fail(prev, err)
	}
	return s.succeed(ctx, prev, acc)
}

// LoginTelegram входит через данные Telegram Mini App; при первом входе создает профиль
func (s *Session) LoginTelegram(ctx context.Context, initData string) (State, error) {
	const op = "session.telegram"
	prev, err := s.begin(op)
	if err != nil {
		return s.State(), err
	}
	if s.providers.Telegram == nil {
		return s.fail(prev, apperrors.Validation(op, fmt.Errorf("%w: telegram login is disabled", apperrors.ErrForbidden)))
	}

	id, err := s.providers.Telegram.Authenticate(ctx, identity.Credentials{InitData: initData})
	if err != nil {
		return s.fail(prev, err)
	}
	acc, err := s.accounts.Fetch(ctx, id.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		acc, err = s.createFromIdentity(ctx, id)
	}
	if err != nil {
		return s.fail(prev, err)
	}
	return s.succeed(ctx, prev, acc)
}

func (s *Session) createFromIdentity(ctx context.Context, id identity.Identity) (models.Account, error) {
	username := id.Username
	taken, err := s.accounts.UsernameTaken(ctx, username)
	if err != nil {
		return models.Account{}, err
	}
	if taken {
		username = id.UserID
	}
	return s.accounts.Create(ctx, models.Account{
		ID:          id.UserID,
		Username:    username,
		Email:       id.Email,
		DisplayName: id.DisplayName,
		Avatar:      id.Avatar,
		IsVerified:  id.Verified,
	})
}

// Logout закрывает подписки, очищает хранилища и переводит сессию в anonymous
func (s *Session) Logout(ctx context.Context) State {
	s.mu.Lock()
	var prev models.Account
	if s.user != nil {
		prev = *s.user
	}
	s.status = StatusAnonymous
	s.user = nil
	s.token = ""
	s.err = nil
	st, listeners := s.stateLocked(), s.listenersLocked()
	s.mu.Unlock()

	// статус сброшен до хуков, поэтому параллельная подписка не пройдет проверку входа
	s.runLogoutHooks(prev)

	s.persist(ctx)
	notify(listeners, st)
	return st
}

// SyncProfile перечитывает профиль и заменяет кэшированную копию текущего пользователя
func (s *Session) SyncProfile(ctx context.Context, id string) error {
	acc, err := s.accounts.Fetch(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.status != StatusAuthenticated || s.user == nil || s.user.ID != id {
		s.mu.Unlock()
		return nil
	}
	s.user = &acc
	st, listeners := s.stateLocked(), s.listenersLocked()
	s.mu.Unlock()

	s.persist(ctx)
	notify(listeners, st)
	return nil
}

// Confirm проверяет восстановленную из кэша сессию: токен и наличие профиля.
// Сетевая ошибка оставляет сессию как есть.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.RLock()
	status, user, token := s.status, s.user, s.token
	s.mu.RUnlock()
	if status != StatusAuthenticated || user == nil {
		return nil
	}

	userID, err := s.jwt.ExtractUserID(token)
	if err != nil || userID != user.ID {
		log.Info().Str("user_id", user.ID).Msg("сохраненная сессия недействительна")
		s.Logout(ctx)
		return apperrors.Validation("session.confirm", apperrors.ErrNotAuthenticated)
	}

	acc, err := s.accounts.Fetch(ctx, user.ID)
	if errors.Is(err, apperrors.ErrNotFound) {
		log.Info().Str("user_id", user.ID).Msg("профиль сохраненной сессии не найден")
		s.Logout(ctx)
		return apperrors.Validation("session.confirm", apperrors.ErrNotAuthenticated)
	}
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.ID).Msg("не удалось подтвердить сессию, используем кэш")
		return err
	}

	s.mu.Lock()
	s.user = &acc
	st, listeners := s.stateLocked(), s.listenersLocked()
	onLogin := append([]func(context.Context, models.Account){}, s.onLogin...)
	s.mu.Unlock()

	s.persist(ctx)
	notify(listeners, st)
	for _, fn := range onLogin {
		fn(ctx, acc)
	}
	return nil
}

func (s *Session) begin(op string) (State, error) {
	s.mu.Lock()
	if s.status == StatusAuthenticating {
		s.mu.Unlock()
		return State{}, apperrors.Validation(op, apperrors.ErrInFlight)
	}
	prev := s.stateLocked()
	s.status = StatusAuthenticating
	s.err = nil
	st, listeners := s.stateLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, st)
	return prev, nil
}

// fail возвращает сессию в предыдущее состояние и сохраняет ошибку
func (s *Session) fail(prev State, err error) (State, error) {
	s.mu.Lock()
	s.status = prev.Status
	s.user = prev.User
	s.token = prev.Token
	s.err = err
	st, listeners := s.stateLocked(), s.listenersLocked()
	s.mu.Unlock()

	notify(listeners, st)
	return st, err
}

func (s *Session) succeed(ctx context.Context, prev State, acc models.Account) (State, error) {
	token, err := s.jwt.GenerateToken(acc.ID)
	if err != nil {
		return s.fail(prev, fmt.Errorf("ошибка генерации токена: %w", err))
	}

	// смена пользователя закрывает все подписки прежнего до открытия новых
	if prev.Status == StatusAuthenticated && prev.User != nil {
		s.runLogoutHooks(*prev.User)
	}

	s.mu.Lock()
	s.status = StatusAuthenticated
	s.user = &acc
	s.token = token
	s.err = nil
	st, listeners := s.stateLocked(), s.listenersLocked()
	onLogin := append([]func(context.Context, models.Account){}, s.onLogin...)
	s.mu.Unlock()

	log.Info().Str("user_id", acc.ID).Msg("пользователь вошел")
	s.persist(ctx)
	notify(listeners, st)
	for _, fn := range onLogin {
		fn(ctx, acc)
	}
	return st, nil
}

func (s *Session) runLogoutHooks(prev models.Account) {
	s.mu.RLock()
	hooks := append([]func(models.Account){}, s.onLogout...)
	s.mu.RUnlock()
	for _, fn := range hooks {
		fn(prev)
	}
}

func (s *Session) persist(ctx context.Context) {
	s.mu.RLock()
	saver := s.saver
	s.mu.RUnlock()
	if saver == nil {
		return
	}
	if err := saver.Save(context.WithoutCancel(ctx)); err != nil {
		log.Warn().Err(err).Msg("не удалось сохранить сессию в кэш")
	}
}

func (s *Session) stateLocked() State {
	st := State{Status: s.status, Token: s.token}
	if s.user != nil {
		user := *s.user
		st.User = &user
	}
	if s.err != nil {
		st.Error = s.err.Error()
	}
	return st
}

func (s *Session) listenersLocked() []func(State) {
	out := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func notify(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}

type snapshot struct {
	User  *models.Account `json:"user"`
	Token string          `json:"token"`
}

// Section возвращает раздел auth-storage снимка кэша
func (s *Session) Section() cache.Section { return authSection{s} }

type authSection struct{ s *Session }

func (a authSection) CacheKey() string { return cache.KeyAuth }

func (a authSection) CacheValue() any {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()
	if a.s.status != StatusAuthenticated {
		return snapshot{}
	}
	return snapshot{User: a.s.user, Token: a.s.token}
}

// Hydrate восстанавливает последнюю сессию; ее нужно подтвердить через Confirm
func (a authSection) Hydrate(raw []byte) error {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("ошибка разбора %s: %w", cache.KeyAuth, err)
	}
	if snap.User == nil || snap.User.ID == "" || snap.Token == "" {
		return nil
	}

	a.s.mu.Lock()
	a.s.status = StatusAuthenticated
	a.s.user = snap.User
	a.s.token = snap.Token
	st, listeners := a.s.stateLocked(), a.s.listenersLocked()
	a.s.mu.Unlock()

	notify(listeners, st)
	return nil
}
