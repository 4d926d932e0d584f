// Package app собирает хранилища, подписки, сессию и HTTP API агента.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/config"
	"github.com/rajivgeraev/skillswap-api/internal/fanout"
	"github.com/rajivgeraev/skillswap-api/internal/identity"
	"github.com/rajivgeraev/skillswap-api/internal/media"
	"github.com/rajivgeraev/skillswap-api/internal/metrics"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/services/auth"
	"github.com/rajivgeraev/skillswap-api/internal/services/chat"
	"github.com/rajivgeraev/skillswap-api/internal/services/exchange"
	mediasvc "github.com/rajivgeraev/skillswap-api/internal/services/media"
	"github.com/rajivgeraev/skillswap-api/internal/services/notifications"
	"github.com/rajivgeraev/skillswap-api/internal/services/profile"
	"github.com/rajivgeraev/skillswap-api/internal/services/skills"
	"github.com/rajivgeraev/skillswap-api/internal/services/subscriptions"
	"github.com/rajivgeraev/skillswap-api/internal/session"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/subscription"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
	"github.com/rajivgeraev/skillswap-api/internal/websocket"
)

// App все компоненты агента, созданные один раз при старте
type App struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Source   remote.Source
	Cache    *cache.Persister
	JWT      *utils.JWTService
	Session  *session.Session
	Uploader media.Uploader

	Accounts      *store.AccountStore
	Skills        *store.SkillStore
	Exchanges     *store.ExchangeStore
	Messages      *store.MessageStore
	Notifications *store.NotificationStore
	Ratings       *store.RatingStore

	Subscriptions *subscription.Manager
	Hub           *websocket.Manager

	closeMu sync.Mutex
	closers []func()
}

// Options переопределения для тестов
type Options struct {
	Backend      remote.Backend
	Broker       remote.Broker
	KV           cache.KV
	Uploader     media.Uploader
	PasswordCost int
	Telegram     identity.Provider
}

// Build создает все компоненты по конфигурации
func Build(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Registry: prometheus.NewRegistry()}
	if err := a.build(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) error {
	cfg := a.Config
	a.Metrics = metrics.New(a.Registry)

	backend, err := pick(opts.Backend, func() (remote.Backend, error) { return a.openBackend(ctx, cfg.Remote) })
	if err != nil {
		return fmt.Errorf("ошибка инициализации хранилища документов: %w", err)
	}
	broker, err := pick(opts.Broker, func() (remote.Broker, error) { return a.openBroker(cfg) })
	if err != nil {
		return fmt.Errorf("ошибка инициализации брокера изменений: %w", err)
	}
	kv, err := pick(opts.KV, func() (cache.KV, error) { return a.openCache(cfg.Cache) })
	if err != nil {
		return fmt.Errorf("ошибка открытия локального кэша: %w", err)
	}
	a.Uploader, err = pick(opts.Uploader, func() (media.Uploader, error) { return openUploader(ctx, cfg.Media) })
	if err != nil {
		return fmt.Errorf("ошибка инициализации хостинга вложений: %w", err)
	}

	a.Source = remote.NewLive(backend, broker)
	a.Cache = cache.NewPersister(kv, a.Metrics)
	a.JWT = utils.NewJWTService(cfg.JWTSecret)

	// сессия создается после хранилища профилей, поэтому хранилища видят ее через ссылку
	ref := &sessionRef{}
	base := store.Deps{Source: a.Source, Session: ref, Saver: a.Cache, Metrics: a.Metrics}
	a.Accounts = store.NewAccountStore(base)
	a.Notifications = store.NewNotificationStore(base)

	deps := base
	deps.Notifier = fanout.NewDispatcher(a.Notifications, a.Accounts, a.Metrics)
	a.Skills = store.NewSkillStore(deps)
	a.Exchanges = store.NewExchangeStore(deps, a.Accounts)
	a.Messages = store.NewMessageStore(deps)
	a.Ratings = store.NewRatingStore(deps, a.Accounts, a.Exchanges)

	password := identity.NewPasswordProvider(a.Source)
	if opts.PasswordCost > 0 {
		password = password.WithCost(opts.PasswordCost)
	}
	telegram := opts.Telegram
	if telegram == nil && cfg.TelegramBotToken != "" {
		telegram = identity.NewTelegramProvider(cfg.TelegramBotToken)
	}
	a.Session = session.New(a.Accounts, session.Providers{Password: password, Telegram: telegram}, a.JWT)
	ref.set(a.Session)

	a.Subscriptions = subscription.NewManager(a.Source, a.Session, a.Metrics)
	a.Hub = websocket.NewManager(messageReader{session: a.Session, messages: a.Messages})

	sections := []cache.Section{a.Session.Section(), a.Skills.Section(), a.Exchanges.Section(), a.Notifications.Section()}
	sections = append(sections, a.Messages.Sections()...)
	a.Cache.Register(sections...)
	a.Session.SetSaver(a.Cache)

	a.wireSession()
	a.wirePushes()
	return nil
}

func pick[T any](given T, open func() (T, error)) (T, error) {
	if any(given) != nil {
		return given, nil
	}
	return open()
}

// Scopes области подписок по имени
func (a *App) Scopes() map[string]subscriptions.ScopeFactory {
	return map[string]subscriptions.ScopeFactory{
		"skills":        func(string) subscription.Scope { return a.Skills.AllSkillsScope() },
		"exchanges":     a.Exchanges.UserScope,
		"messages":      a.Messages.MessagesScope,
		"conversations": a.Messages.ConversationsScope,
		"notifications": a.Notifications.UserScope,
	}
}

// userScopes открываются при входе пользователя
func (a *App) userScopes(userID string) []subscription.Scope {
	return []subscription.Scope{
		a.Skills.AllSkillsScope(),
		a.Exchanges.UserScope(userID),
		a.Messages.MessagesScope(userID),
		a.Messages.ConversationsScope(userID),
		a.Notifications.UserScope(userID),
	}
}

func (a *App) wireSession() {
	a.Session.OnLogout(func(prev models.Account) {
		if prev.ID != "" {
			a.Hub.SendPayload(prev.ID, websocket.EventSession, fiber.Map{"status": session.StatusAnonymous})
		}
		// после CloseAll ни один снимок прежнего пользователя не попадет в хранилища
		a.Subscriptions.CloseAll()
		a.Accounts.Collection().Reset()
		a.Skills.Collection().Reset()
		a.Exchanges.Collection().Reset()
		a.Messages.Messages().Reset()
		a.Messages.Conversations().Reset()
		a.Notifications.Collection().Reset()
		a.Ratings.UserRatingsCollection().Reset()
		a.Ratings.ExchangeRatingsCollection().Reset()
	})

	a.Session.OnLogin(func(_ context.Context, acc models.Account) {
		if _, err := a.Subscriptions.Replace(a.userScopes(acc.ID)...); err != nil {
			log.Error().Err(err).Str("user_id", acc.ID).Msg("не удалось открыть подписки пользователя")
		}
	})
}

// wirePushes отправляет изменения хранилищ в WebSocket клиентов текущего пользователя
func (a *App) wirePushes() {
	push := func(ch store.Change) {
		if acc, ok := a.Session.CurrentAccount(); ok {
			a.Hub.SendPayload(acc.ID, websocket.EventStoreChanged, ch)
		}
	}
	unread := func(ch store.Change) {
		push(ch)
		if acc, ok := a.Session.CurrentAccount(); ok {
			a.Hub.BroadcastUnreadCounts(acc.ID, a.Messages.GetUnreadCount(acc.ID))
		}
	}

	a.Skills.Collection().Watch(push)
	a.Exchanges.Collection().Watch(push)
	a.Notifications.Collection().Watch(push)
	a.Messages.Messages().Watch(push)
	a.Messages.Conversations().Watch(unread)
}

// Restore гидратирует хранилища из локального кэша
func (a *App) Restore(ctx context.Context) error {
	version, err := a.Cache.Load(ctx)
	if err != nil {
		return err
	}
	log.Info().Int64("version", version).Msg("снимок кэша загружен")
	return nil
}

// WebSocketAuth принимает только токен пользователя активной сессии
func (a *App) WebSocketAuth(token string) (string, error) {
	userID, err := a.JWT.ExtractUserID(token)
	if err != nil {
		return "", err
	}
	acc, ok := a.Session.CurrentAccount()
	if !ok || acc.ID != userID {
		return "", utils.ErrInvalidToken
	}
	return userID, nil
}

// Routes регистрирует HTTP API
func (a *App) Routes(app *fiber.App) {
	authMiddleware := middleware.AuthMiddleware(a.JWT, a.Session)

	auth.NewAuthService(a.Session).SetupRoutes(app, authMiddleware)
	profile.NewProfileService(a.Accounts, a.Ratings).SetupRoutes(app, authMiddleware)
	skills.NewSkillsService(a.Skills).SetupRoutes(app, authMiddleware)
	exchange.NewExchangeService(a.Exchanges, a.Ratings).SetupRoutes(app, authMiddleware)
	chat.NewChatService(a.Messages).SetupRoutes(app, authMiddleware)
	notifications.NewNotificationsService(a.Notifications).SetupRoutes(app, authMiddleware)
	mediasvc.NewMediaService(a.Uploader).SetupRoutes(app, authMiddleware)
	subscriptions.NewSubscriptionsService(a.Subscriptions, a.Scopes()).SetupRoutes(app, authMiddleware)
}

func (a *App) onClose(fn func()) {
	a.closeMu.Lock()
	a.closers = append(a.closers, fn)
	a.closeMu.Unlock()
}

// Close закрывает подписки, соединения и драйверы в обратном порядке
func (a *App) Close() {
	if a.Subscriptions != nil {
		a.Subscriptions.Shutdown()
	}
	if a.Hub != nil {
		a.Hub.Shutdown()
	}
	a.closeMu.Lock()
	closers := a.closers
	a.closers = nil
	a.closeMu.Unlock()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}

type sessionRef struct {
	mu sync.RWMutex
	s  *session.Session
}

func (r *sessionRef) set(s *session.Session) {
	r.mu.Lock()
	r.s = s
	r.mu.Unlock()
}

func (r *sessionRef) get() *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.s
}

func (r *sessionRef) CurrentAccount() (models.Account, bool) {
	if s := r.get(); s != nil {
		return s.CurrentAccount()
	}
	return models.Account{}, false
}

func (r *sessionRef) SyncProfile(ctx context.Context, id string) error {
	if s := r.get(); s != nil {
		return s.SyncProfile(ctx, id)
	}
	return nil
}

// messageReader выполняет команду message_read от WebSocket клиента
type messageReader struct {
	session  *session.Session
	messages *store.MessageStore
}

func (m messageReader) MarkMessageRead(ctx context.Context, userID, messageID string) error {
	acc, ok := m.session.CurrentAccount()
	if !ok || acc.ID != userID {
		return utils.ErrInvalidToken
	}
	_, err := m.messages.MarkAsRead(ctx, messageID)
	return err
}
