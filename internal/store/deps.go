package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/metrics"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// Имена коллекций удаленного источника
const (
	UsersCollection           = "users"
	SkillsCollection          = "skills"
	ExchangesCollection       = "exchanges"
	MessagesCollection        = "messages"
	ConversationsCollection   = "conversations"
	NotificationsCollection   = "notifications"
	UserRatingsCollection     = "user_ratings"
	ExchangeRatingsCollection = "exchange_ratings"
)

// Session текущая сессия пользователя
type Session interface {
	CurrentAccount() (models.Account, bool)
	SyncProfile(ctx context.Context, id string) error
}

// Notifier получает подтвержденные мутации и пишет уведомления.
// Реализация не возвращает ошибок: сбои логируются на ее стороне.
type Notifier interface {
	ExchangeCreated(ctx context.Context, ex models.Exchange, actorID string)
	ExchangeStatusChanged(ctx context.Context, ex models.Exchange, actorID string)
	MessageSent(ctx context.Context, msg models.Message)
	RatingSubmitted(ctx context.Context, rating models.Rating)
	SkillAdded(ctx context.Context, skill models.Skill)
}

// Saver записывает снимок локального кэша
type Saver interface {
	Save(ctx context.Context) error
}

// Deps зависимости хранилищ, создаются один раз при старте приложения
type Deps struct {
	Source   remote.Source
	Session  Session
	Notifier Notifier
	Saver    Saver
	Metrics  *metrics.Metrics
	Now      func() time.Time
	NewID    func() string
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	return d
}

// persistHook сохраняет снимок после изменения коллекции; кэш не авторитетен, поэтому ошибка только логируется
func (d Deps) persistHook(store string) func() {
	return func() {
		if d.Saver == nil {
			return
		}
		if err := d.Saver.Save(context.Background()); err != nil {
			log.Warn().Err(err).Str("store", store).Msg("не удалось записать снимок кэша")
		}
	}
}

// actor возвращает текущего пользователя или ошибку валидации
func (d Deps) actor(op string) (models.Account, error) {
	if d.Session == nil {
		return models.Account{}, apperrors.Validation(op, apperrors.ErrNotAuthenticated)
	}
	acc, ok := d.Session.CurrentAccount()
	if !ok {
		return models.Account{}, apperrors.Validation(op, apperrors.ErrNotAuthenticated)
	}
	return acc, nil
}

// syncProfile обновляет профиль в сессии; сбой не отменяет уже подтвержденную запись
func (d Deps) syncProfile(ctx context.Context, id string) {
	if d.Session == nil {
		return
	}
	if err := d.Session.SyncProfile(ctx, id); err != nil {
		log.Warn().Err(err).Str("user_id", id).Msg("не удалось синхронизировать профиль")
	}
}

// remoteFailure оборачивает ошибку записи и сохраняет ее в состоянии коллекции
func remoteFailure[T Entity](c *Collection[T], op string, err error) error {
	wrapped := apperrors.Remote(op, err)
	if !apperrors.IsValidation(wrapped) && !errors.Is(err, apperrors.ErrAlreadyExists) {
		c.ReportError(wrapped)
	}
	return wrapped
}

type nopNotifier struct{}

func (nopNotifier) ExchangeCreated(context.Context, models.Exchange, string)       {}
func (nopNotifier) ExchangeStatusChanged(context.Context, models.Exchange, string) {}
func (nopNotifier) MessageSent(context.Context, models.Message)                    {}
func (nopNotifier) RatingSubmitted(context.Context, models.Rating)                 {}
func (nopNotifier) SkillAdded(context.Context, models.Skill)                       {}
