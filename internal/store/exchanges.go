package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/subscription"
)

// ExchangeDraft данные нового предложения обмена
type ExchangeDraft struct {
	RecipientID      string              `json:"recipient_id"`
	InitiatorSkillID string              `json:"initiator_skill_id"`
	RecipientSkillID string              `json:"recipient_skill_id"`
	ProposedDate     time.Time           `json:"proposed_date"`
	ProposedTime     string              `json:"proposed_time,omitempty"`
	Duration         int                 `json:"duration"`
	Location         string              `json:"location"`
	Notes            string              `json:"notes,omitempty"`
	Attachments      []models.Attachment `json:"attachments,omitempty"`
}

type transition struct {
	recipientOnly bool
}

var transitions = map[models.ExchangeStatus]map[models.ExchangeStatus]transition{
	models.StatusPending: {
		models.StatusAccepted: {recipientOnly: true},
		models.StatusDeclined: {recipientOnly: true},
		models.StatusCanceled: {},
	},
	models.StatusAccepted: {
		models.StatusInProgress: {},
		models.StatusCompleted:  {},
		models.StatusCanceled:   {},
	},
	models.StatusInProgress: {
		models.StatusCompleted: {},
		models.StatusCanceled:  {},
	},
}

// AllowedTransitions возвращает статусы, в которые пользователь может перевести обмен
func AllowedTransitions(ex models.Exchange, userID string) []models.ExchangeStatus {
	var out []models.ExchangeStatus
	for _, to := range []models.ExchangeStatus{
		models.StatusAccepted, models.StatusDeclined, models.StatusInProgress,
		models.StatusCompleted, models.StatusCanceled,
	} {
		if CanTransition(ex, to, userID) == nil {
			out = append(out, to)
		}
	}
	return out
}

// CanTransition проверяет переход статуса от имени пользователя
func CanTransition(ex models.Exchange, to models.ExchangeStatus, userID string) error {
	if !ex.Involves(userID) {
		return apperrors.ErrForbidden
	}
	t, ok := transitions[ex.Status][to]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvalidTransition, ex.Status, to)
	}
	if t.recipientOnly && ex.RecipientID != userID {
		return fmt.Errorf("%w: only the recipient can move %s -> %s", apperrors.ErrForbidden, ex.Status, to)
	}
	return nil
}

// ExchangeStore хранилище обменов текущего пользователя
type ExchangeStore struct {
	deps     Deps
	accounts *AccountStore
	coll     *Collection[models.Exchange]
}

// NewExchangeStore создает новый экземпляр ExchangeStore
func NewExchangeStore(d Deps, accounts *AccountStore) *ExchangeStore {
	d = d.withDefaults()
	coll := NewCollection("exchanges", func(a, b models.Exchange) bool { return a.CreatedAt.After(b.CreatedAt) }, d.Metrics)
	coll.OnCommit(d.persistHook("exchanges"))
	return &ExchangeStore{deps: d, accounts: accounts, coll: coll}
}

// Collection возвращает коллекцию обменов
func (s *ExchangeStore) Collection() *Collection[models.Exchange] { return s.coll }

// Section возвращает раздел снимка кэша
func (s *ExchangeStore) Section() cache.Section {
	return section[models.Exchange]{key: cache.KeyExchanges, field: "exchanges", coll: s.coll}
}

// UserScope два живых запроса: обмены, где пользователь инициатор, и где получатель
func (s *ExchangeStore) UserScope(userID string) subscription.Scope {
	base := remote.Collection(ExchangesCollection)
	return subscription.Scope{
		Name: "exchanges",
		Sink: s.coll,
		Queries: []remote.Query{
			base.Where("initiator_id", remote.OpEqual, userID),
			base.Where("recipient_id", remote.OpEqual, userID),
		},
	}
}

// Create предлагает обмен другому пользователю
func (s *ExchangeStore) Create(ctx context.Context, draft ExchangeDraft) (models.Exchange, error) {
	const op = "exchanges.create"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Exchange{}, err
	}
	switch {
	case draft.RecipientID == "":
		return models.Exchange{}, apperrors.Required(op, "recipient_id")
	case draft.RecipientID == acc.ID:
		return models.Exchange{}, apperrors.Invalid(op, "recipient_id", "cannot propose an exchange to yourself")
	case draft.InitiatorSkillID == "":
		return models.Exchange{}, apperrors.Required(op, "initiator_skill_id")
	case draft.RecipientSkillID == "":
		return models.Exchange{}, apperrors.Required(op, "recipient_skill_id")
	case draft.ProposedDate.IsZero():
		return models.Exchange{}, apperrors.Required(op, "proposed_date")
	case draft.Duration <= 0:
		return models.Exchange{}, apperrors.Invalid(op, "duration", "must be positive")
	case strings.TrimSpace(draft.Location) == "":
		return models.Exchange{}, apperrors.Required(op, "location")
	}

	now := s.deps.Now()
	ex := models.Exchange{
		ID:               s.deps.NewID(),
		InitiatorID:      acc.ID,
		RecipientID:      draft.RecipientID,
		InitiatorSkillID: draft.InitiatorSkillID,
		RecipientSkillID: draft.RecipientSkillID,
		Status:           models.StatusPending,
		ProposedDate:     draft.ProposedDate,
		ProposedTime:     draft.ProposedTime,
		Duration:         draft.Duration,
		Location:         strings.TrimSpace(draft.Location),
		Notes:            draft.Notes,
		Attachments:      draft.Attachments,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.deps.Source.Create(ctx, ExchangesCollection, ex.ID, ex)
	s.deps.Metrics.Mutation("exchanges", "create", err)
	if err != nil {
		return models.Exchange{}, remoteFailure(s.coll, op, err)
	}
	s.coll.Put(ex)
	s.coll.ClearError()

	s.deps.Notifier.ExchangeCreated(ctx, ex, acc.ID)
	return ex, nil
}

// UpdateStatus переводит обмен в новый статус.
// При завершении увеличивает счетчики обоих участников; побочные эффекты не откатывают запись.
func (s *ExchangeStore) UpdateStatus(ctx context.Context, id string, status models.ExchangeStatus) (models.Exchange, error) {
	const op = "exchanges.status"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Exchange{}, err
	}
	if !status.Valid() {
		return models.Exchange{}, apperrors.Invalid(op, "status", fmt.Sprintf("unknown status %q", status))
	}
	if id == "" {
		return models.Exchange{}, apperrors.Required(op, "id")
	}

	done, err := s.coll.Begin(Fingerprint(id, "status"))
	if err != nil {
		return models.Exchange{}, err
	}
	defer done()

	// статус читается под защитой: следующий переход видит результат предыдущего
	ex, err := s.load(ctx, op, id)
	if err != nil {
		return models.Exchange{}, err
	}
	if err := CanTransition(ex, status, acc.ID); err != nil {
		return models.Exchange{}, apperrors.Validation(op, err)
	}

	now := s.deps.Now()
	patch := remote.Patch{"status": status, "updated_at": now}
	if status == models.StatusCompleted {
		patch["completed_at"] = now
	} else {
		patch["completed_at"] = remote.DeleteField()
	}

	err = s.deps.Source.Update(ctx, ExchangesCollection, id, patch)
	s.deps.Metrics.Mutation("exchanges", "status", err)
	if err != nil {
		return models.Exchange{}, remoteFailure(s.coll, op, err)
	}

	updated := ex
	updated.Status = status
	updated.UpdatedAt = now
	updated.CompletedAt = nil
	if status == models.StatusCompleted {
		completedAt := now
		updated.CompletedAt = &completedAt
	}
	s.coll.Put(updated)
	s.coll.ClearError()

	if status == models.StatusCompleted && s.accounts != nil {
		for _, userID := range []string{updated.InitiatorID, updated.RecipientID} {
			if err := s.accounts.IncrementCompleted(ctx, userID); err != nil {
				log.Error().Err(err).Str("exchange_id", id).Str("user_id", userID).Msg("не удалось увеличить счетчик завершенных обменов")
			}
		}
		s.deps.syncProfile(ctx, acc.ID)
	}

	s.deps.Notifier.ExchangeStatusChanged(ctx, updated, acc.ID)
	return updated, nil
}

// GetByID возвращает обмен из памяти
func (s *ExchangeStore) GetByID(id string) (models.Exchange, bool) {
	return s.coll.Get(id)
}

// GetUserExchanges возвращает обмены, в которых участвует пользователь, новые первыми
func (s *ExchangeStore) GetUserExchanges(userID string) []models.Exchange {
	return s.coll.Select(func(ex models.Exchange) bool { return ex.Involves(userID) })
}

// GetByStatus возвращает обмены пользователя в статусе status
func (s *ExchangeStore) GetByStatus(userID string, status models.ExchangeStatus) []models.Exchange {
	return s.coll.Select(func(ex models.Exchange) bool { return ex.Involves(userID) && ex.Status == status })
}

// GetPending возвращает ожидающие обмены пользователя
func (s *ExchangeStore) GetPending(userID string) []models.Exchange {
	return s.GetByStatus(userID, models.StatusPending)
}

// GetCompleted возвращает завершенные обмены пользователя
func (s *ExchangeStore) GetCompleted(userID string) []models.Exchange {
	return s.GetByStatus(userID, models.StatusCompleted)
}

func (s *ExchangeStore) load(ctx context.Context, op, id string) (models.Exchange, error) {
	if id == "" {
		return models.Exchange{}, apperrors.Required(op, "id")
	}
	if ex, ok := s.coll.Get(id); ok {
		return ex, nil
	}
	return s.Fetch(ctx, id)
}

// Fetch перечитывает обмен из удаленного источника
func (s *ExchangeStore) Fetch(ctx context.Context, id string) (models.Exchange, error) {
	doc, err := s.deps.Source.Get(ctx, ExchangesCollection, id)
	if err != nil {
		return models.Exchange{}, apperrors.Remote("exchanges.fetch", err)
	}
	var ex models.Exchange
	if err := doc.Decode(&ex); err != nil {
		return models.Exchange{}, apperrors.Remote("exchanges.fetch", err)
	}
	return ex, nil
}
