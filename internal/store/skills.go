package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/cache"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
	"github.com/rajivgeraev/skillswap-api/internal/subscription"
)

// SkillDraft данные нового навыка
type SkillDraft struct {
	Name        string               `json:"name"`
	Category    models.SkillCategory `json:"category"`
	Description string               `json:"description"`
	Level       models.SkillLevel    `json:"level"`
	Examples    []string             `json:"examples,omitempty"`
	IsOffered   bool                 `json:"is_offered"`
}

// SkillUpdate изменяемые поля навыка; nil означает "не менять"
type SkillUpdate struct {
	Name        *string               `json:"name,omitempty"`
	Category    *models.SkillCategory `json:"category,omitempty"`
	Description *string               `json:"description,omitempty"`
	Level       *models.SkillLevel    `json:"level,omitempty"`
	Examples    *[]string             `json:"examples,omitempty"`
}

// SkillStore хранилище навыков всех пользователей
type SkillStore struct {
	deps Deps
	coll *Collection[models.Skill]
}

// NewSkillStore создает новый экземпляр SkillStore
func NewSkillStore(d Deps) *SkillStore {
	d = d.withDefaults()
	coll := NewCollection("skills", func(a, b models.Skill) bool { return a.CreatedAt.After(b.CreatedAt) }, d.Metrics)
	coll.OnCommit(d.persistHook("skills"))
	return &SkillStore{deps: d, coll: coll}
}

// Collection возвращает коллекцию навыков
func (s *SkillStore) Collection() *Collection[models.Skill] { return s.coll }

// Section возвращает раздел снимка кэша
func (s *SkillStore) Section() cache.Section {
	return section[models.Skill]{key: cache.KeySkills, field: "skills", coll: s.coll}
}

// AllSkillsScope живой запрос по всем навыкам для экрана поиска
func (s *SkillStore) AllSkillsScope() subscription.Scope {
	return subscription.Scope{
		Name:     "skills",
		Sink:     s.coll,
		Queries:  []remote.Query{remote.Collection(SkillsCollection).OrderedBy("created_at", true)},
		Complete: true,
	}
}

func validateSkillFields(op, name string, category models.SkillCategory, level models.SkillLevel) error {
	if strings.TrimSpace(name) == "" {
		return apperrors.Required(op, "name")
	}
	if !category.Valid() {
		return apperrors.Invalid(op, "category", fmt.Sprintf("unknown category %q", category))
	}
	if !level.Valid() {
		return apperrors.Invalid(op, "level", fmt.Sprintf("unknown level %q", level))
	}
	return nil
}

func skillLimitError(op string, offered bool) error {
	list := "needed"
	if offered {
		list = "offered"
	}
	return apperrors.Validation(op, fmt.Errorf("%w: at most %d %s skills", apperrors.ErrSkillLimit, models.MaxSkillsPerList, list))
}

// Create добавляет навык текущему пользователю.
// Лимит проверяется до обращения к сети и повторно по свежему профилю.
func (s *SkillStore) Create(ctx context.Context, draft SkillDraft) (models.Skill, error) {
	const op = "skills.create"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Skill{}, err
	}
	if err := validateSkillFields(op, draft.Name, draft.Category, draft.Level); err != nil {
		return models.Skill{}, err
	}
	if strings.TrimSpace(draft.Description) == "" {
		return models.Skill{}, apperrors.Required(op, "description")
	}
	if len(acc.SkillList(draft.IsOffered)) >= models.MaxSkillsPerList {
		return models.Skill{}, skillLimitError(op, draft.IsOffered)
	}

	kind := "add-skill-needed"
	if draft.IsOffered {
		kind = "add-skill-offered"
	}
	done, err := s.coll.Begin(Fingerprint(acc.ID, kind))
	if err != nil {
		return models.Skill{}, err
	}
	defer done()

	doc, err := s.deps.Source.Get(ctx, UsersCollection, acc.ID)
	if err != nil {
		return models.Skill{}, remoteFailure(s.coll, op, err)
	}
	var fresh models.Account
	if err := doc.Decode(&fresh); err != nil {
		return models.Skill{}, remoteFailure(s.coll, op, err)
	}
	current := fresh.SkillList(draft.IsOffered)
	if len(current) >= models.MaxSkillsPerList {
		return models.Skill{}, skillLimitError(op, draft.IsOffered)
	}

	skill := models.Skill{
		ID:          s.deps.NewID(),
		Name:        strings.TrimSpace(draft.Name),
		Category:    draft.Category,
		Description: strings.TrimSpace(draft.Description),
		Level:       draft.Level,
		Examples:    draft.Examples,
		UserID:      acc.ID,
		IsOffered:   draft.IsOffered,
		CreatedAt:   s.deps.Now(),
	}

	err = s.deps.Source.Create(ctx, SkillsCollection, skill.ID, skill)
	s.deps.Metrics.Mutation("skills", "create", err)
	if err != nil {
		return models.Skill{}, remoteFailure(s.coll, op, err)
	}

	list := append(append([]string{}, current...), skill.ID)
	if err := s.deps.Source.Update(ctx, UsersCollection, acc.ID, remote.Patch{models.SkillListField(draft.IsOffered): list}); err != nil {
		// навык без записи в профиле не должен остаться в источнике
		if delErr := s.deps.Source.Delete(ctx, SkillsCollection, skill.ID); delErr != nil {
			log.Error().Err(delErr).Str("skill_id", skill.ID).Msg("не удалось удалить навык после ошибки обновления профиля")
		}
		return models.Skill{}, remoteFailure(s.coll, op, err)
	}

	s.coll.Put(skill)
	s.coll.ClearError()
	s.deps.syncProfile(ctx, acc.ID)
	s.deps.Notifier.SkillAdded(ctx, skill)
	return skill, nil
}

// Update меняет навык; доступно только владельцу
func (s *SkillStore) Update(ctx context.Context, id string, upd SkillUpdate) (models.Skill, error) {
	const op = "skills.update"
	acc, err := s.deps.actor(op)
	if err != nil {
		return models.Skill{}, err
	}
	skill, err := s.load(ctx, op, id)
	if err != nil {
		return models.Skill{}, err
	}
	if skill.UserID != acc.ID {
		return models.Skill{}, apperrors.Validation(op, apperrors.ErrForbidden)
	}

	patch := remote.Patch{}
	next := skill
	if upd.Name != nil {
		next.Name = strings.TrimSpace(*upd.Name)
		patch["name"] = next.Name
	}
	if upd.Category != nil {
		next.Category = *upd.Category
		patch["category"] = next.Category
	}
	if upd.Level != nil {
		next.Level = *upd.Level
		patch["level"] = next.Level
	}
	if upd.Description != nil {
		next.Description = strings.TrimSpace(*upd.Description)
		if next.Description == "" {
			return models.Skill{}, apperrors.Required(op, "description")
		}
		patch["description"] = next.Description
	}
	if upd.Examples != nil {
		patch["examples"] = *upd.Examples
	}
	if len(patch) == 0 {
		return models.Skill{}, apperrors.Invalid(op, "patch", "nothing to update")
	}
	if err := validateSkillFields(op, next.Name, next.Category, next.Level); err != nil {
		return models.Skill{}, err
	}

	err = s.deps.Source.Update(ctx, SkillsCollection, id, patch)
	s.deps.Metrics.Mutation("skills", "update", err)
	if err != nil {
		return models.Skill{}, remoteFailure(s.coll, op, err)
	}
	updated, err := s.fetchOne(ctx, op, id)
	if err != nil {
		return models.Skill{}, err
	}
	return updated, nil
}

// Delete удаляет навык и убирает его из профиля владельца
func (s *SkillStore) Delete(ctx context.Context, id string) error {
	const op = "skills.delete"
	acc, err := s.deps.actor(op)
	if err != nil {
		return err
	}
	skill, err := s.load(ctx, op, id)
	if err != nil {
		return err
	}
	if skill.UserID != acc.ID {
		return apperrors.Validation(op, apperrors.ErrForbidden)
	}

	done, err := s.coll.Begin(Fingerprint(id, "delete-skill"))
	if err != nil {
		return err
	}
	defer done()

	doc, err := s.deps.Source.Get(ctx, UsersCollection, acc.ID)
	if err != nil {
		return remoteFailure(s.coll, op, err)
	}
	var fresh models.Account
	if err := doc.Decode(&fresh); err != nil {
		return remoteFailure(s.coll, op, err)
	}

	// сначала профиль: id навыка не должен остаться в списке без документа
	current := fresh.SkillList(skill.IsOffered)
	list := make([]string, 0, models.MaxSkillsPerList)
	for _, skillID := range current {
		if skillID != id {
			list = append(list, skillID)
		}
	}
	field := models.SkillListField(skill.IsOffered)
	if err := s.deps.Source.Update(ctx, UsersCollection, acc.ID, remote.Patch{field: list}); err != nil {
		return remoteFailure(s.coll, op, err)
	}

	err = s.deps.Source.Delete(ctx, SkillsCollection, id)
	s.deps.Metrics.Mutation("skills", "delete", err)
	if err != nil {
		if restoreErr := s.deps.Source.Update(ctx, UsersCollection, acc.ID, remote.Patch{field: current}); restoreErr != nil {
			log.Error().Err(restoreErr).Str("skill_id", id).Msg("не удалось вернуть навык в профиль после ошибки удаления")
		}
		return remoteFailure(s.coll, op, err)
	}
	s.coll.Remove(id)
	s.deps.syncProfile(ctx, acc.ID)
	return nil
}

// Fetch однократно загружает все навыки
func (s *SkillStore) Fetch(ctx context.Context) ([]models.Skill, error) {
	s.coll.SetLoading(true)
	docs, err := s.deps.Source.Query(ctx, remote.Collection(SkillsCollection).OrderedBy("created_at", true))
	if err != nil {
		wrapped := apperrors.Remote("skills.fetch", err)
		s.coll.ReportError(wrapped)
		return nil, wrapped
	}
	s.coll.ApplyDocuments("skills/fetch", docs, true)
	s.coll.ClearError()
	return s.coll.Items(), nil
}

// GetByID возвращает навык из памяти
func (s *SkillStore) GetByID(id string) (models.Skill, bool) {
	return s.coll.Get(id)
}

// GetByUser возвращает навыки пользователя
func (s *SkillStore) GetByUser(userID string) []models.Skill {
	return s.coll.Select(func(sk models.Skill) bool { return sk.UserID == userID })
}

// GetByCategory возвращает навыки категории
func (s *SkillStore) GetByCategory(category models.SkillCategory) []models.Skill {
	return s.coll.Select(func(sk models.Skill) bool { return sk.Category == category })
}

// Search ищет без учета регистра по названию, описанию и примерам
func (s *SkillStore) Search(text string) []models.Skill {
	needle := strings.ToLower(strings.TrimSpace(text))
	if needle == "" {
		return s.coll.Items()
	}
	return s.coll.Select(func(sk models.Skill) bool {
		if strings.Contains(strings.ToLower(sk.Name), needle) || strings.Contains(strings.ToLower(sk.Description), needle) {
			return true
		}
		for _, example := range sk.Examples {
			if strings.Contains(strings.ToLower(example), needle) {
				return true
			}
		}
		return false
	})
}

func (s *SkillStore) load(ctx context.Context, op, id string) (models.Skill, error) {
	if id == "" {
		return models.Skill{}, apperrors.Required(op, "id")
	}
	if skill, ok := s.coll.Get(id); ok {
		return skill, nil
	}
	return s.fetchOne(ctx, op, id)
}

func (s *SkillStore) fetchOne(ctx context.Context, op, id string) (models.Skill, error) {
	doc, err := s.deps.Source.Get(ctx, SkillsCollection, id)
	if err != nil {
		return models.Skill{}, apperrors.Remote(op, err)
	}
	var skill models.Skill
	if err := doc.Decode(&skill); err != nil {
		return models.Skill{}, apperrors.Remote(op, err)
	}
	s.coll.Put(skill)
	return skill, nil
}
