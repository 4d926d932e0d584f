package store

import (
	"context"
	"strings"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// AccountStore кэширует профили пользователей, которые видел клиент
type AccountStore struct {
	deps Deps
	coll *Collection[models.Account]
}

// ProfileUpdate изменяемые поля профиля; nil означает "не менять"
type ProfileUpdate struct {
	DisplayName *string          `json:"display_name,omitempty"`
	Bio         *string          `json:"bio,omitempty"`
	Avatar      *string          `json:"avatar,omitempty"`
	Location    *models.Location `json:"location,omitempty"`
}

// NewAccountStore создает новый экземпляр AccountStore
func NewAccountStore(d Deps) *AccountStore {
	d = d.withDefaults()
	return &AccountStore{
		deps: d,
		coll: NewCollection("accounts", func(a, b models.Account) bool { return a.Username < b.Username }, d.Metrics),
	}
}

// Collection возвращает коллекцию профилей
func (s *AccountStore) Collection() *Collection[models.Account] { return s.coll }

// GetByID возвращает профиль из памяти
func (s *AccountStore) GetByID(id string) (models.Account, bool) {
	return s.coll.Get(id)
}

// Search ищет профили по username и отображаемому имени
func (s *AccountStore) Search(text string) []models.Account {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return s.coll.Items()
	}
	return s.coll.Select(func(a models.Account) bool {
		return strings.Contains(strings.ToLower(a.Username), needle) ||
			strings.Contains(strings.ToLower(a.DisplayName), needle)
	})
}

// Fetch перечитывает профиль из удаленного источника
func (s *AccountStore) Fetch(ctx context.Context, id string) (models.Account, error) {
	if id == "" {
		return models.Account{}, apperrors.Required("accounts.fetch", "id")
	}
	doc, err := s.deps.Source.Get(ctx, UsersCollection, id)
	if err != nil {
		return models.Account{}, apperrors.Remote("accounts.fetch", err)
	}
	var acc models.Account
	if err := doc.Decode(&acc); err != nil {
		return models.Account{}, apperrors.Remote("accounts.fetch", err)
	}
	acc.ID = doc.ID
	s.coll.Put(acc)
	return acc, nil
}

// Create записывает новый профиль при регистрации
func (s *AccountStore) Create(ctx context.Context, acc models.Account) (models.Account, error) {
	const op = "accounts.create"
	if acc.ID == "" {
		return models.Account{}, apperrors.Required(op, "id")
	}
	if strings.TrimSpace(acc.Username) == "" {
		return models.Account{}, apperrors.Required(op, "username")
	}
	if acc.SkillsOffered == nil {
		acc.SkillsOffered = []string{}
	}
	if acc.SkillsNeeded == nil {
		acc.SkillsNeeded = []string{}
	}
	if acc.MemberSince.IsZero() {
		acc.MemberSince = s.deps.Now()
	}

	err := s.deps.Source.Create(ctx, UsersCollection, acc.ID, acc)
	s.deps.Metrics.Mutation("accounts", "create", err)
	if err != nil {
		return models.Account{}, remoteFailure(s.coll, op, err)
	}
	s.coll.Put(acc)
	return acc, nil
}

// UsernameTaken проверяет, занят ли username
func (s *AccountStore) UsernameTaken(ctx context.Context, username string) (bool, error) {
	docs, err := s.deps.Source.Query(ctx, remote.Collection(UsersCollection).Where("username", remote.OpEqual, username))
	if err != nil {
		return false, apperrors.Remote("accounts.username", err)
	}
	return len(docs) > 0, nil
}

// UpdateFields применяет частичное изменение и перечитывает профиль
func (s *AccountStore) UpdateFields(ctx context.Context, id string, patch remote.Patch) (models.Account, error) {
	const op = "accounts.update"
	if id == "" {
		return models.Account{}, apperrors.Required(op, "id")
	}
	if len(patch) == 0 {
		return models.Account{}, apperrors.Invalid(op, "patch", "nothing to update")
	}
	err := s.deps.Source.Update(ctx, UsersCollection, id, patch)
	s.deps.Metrics.Mutation("accounts", "update", err)
	if err != nil {
		return models.Account{}, remoteFailure(s.coll, op, err)
	}
	return s.Fetch(ctx, id)
}

// UpdateProfile меняет профиль текущего пользователя
func (s *AccountStore) UpdateProfile(ctx context.Context, upd ProfileUpdate) (models.Account, error) {
	const op = "accounts.profile"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Account{}, err
	}

	patch := remote.Patch{}
	if upd.DisplayName != nil {
		name := strings.TrimSpace(*upd.DisplayName)
		if name == "" {
			return models.Account{}, apperrors.Required(op, "display_name")
		}
		patch["display_name"] = name
	}
	if upd.Bio != nil {
		patch["bio"] = strings.TrimSpace(*upd.Bio)
	}
	if upd.Avatar != nil {
		patch["avatar"] = *upd.Avatar
	}
	if upd.Location != nil {
		loc := *upd.Location
		if strings.TrimSpace(loc.City) == "" || strings.TrimSpace(loc.Country) == "" {
			return models.Account{}, apperrors.Invalid(op, "location", "city and country are required")
		}
		if loc.Coordinates != nil && !loc.Coordinates.Valid() {
			return models.Account{}, apperrors.Invalid(op, "location.coordinates", "latitude must be within [-90,90] and longitude within [-180,180]")
		}
		patch["location"] = loc
	}

	updated, err := s.UpdateFields(ctx, acc.ID, patch)
	if err != nil {
		return models.Account{}, err
	}
	s.deps.syncProfile(ctx, acc.ID)
	return updated, nil
}

// IncrementCompleted увеличивает счетчик завершенных обменов
func (s *AccountStore) IncrementCompleted(ctx context.Context, id string) error {
	_, err := s.UpdateFields(ctx, id, remote.Patch{"completed_exchanges": remote.Increment(1)})
	return err
}

// SetTrustScore записывает пересчитанный рейтинг доверия
func (s *AccountStore) SetTrustScore(ctx context.Context, id string, score float64) (models.Account, error) {
	return s.UpdateFields(ctx, id, remote.Patch{"trust_score": score})
}

// DisplayName возвращает имя пользователя для текстов уведомлений
func (s *AccountStore) DisplayName(ctx context.Context, id string) string {
	acc, ok := s.coll.Get(id)
	if !ok {
		fetched, err := s.Fetch(ctx, id)
		if err != nil {
			return ""
		}
		acc = fetched
	}
	return acc.Name()
}
