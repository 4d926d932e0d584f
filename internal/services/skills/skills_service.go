package skills

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// SkillsService API навыков
type SkillsService struct {
	skills *store.SkillStore
}

// NewSkillsService создает новый экземпляр SkillsService
func NewSkillsService(skills *store.SkillStore) *SkillsService {
	return &SkillsService{skills: skills}
}

// ListSkills возвращает навыки из памяти с фильтрами user_id, category и q
func (s *SkillsService) ListSkills(c fiber.Ctx) error {
	var list []models.Skill
	switch {
	case c.Query("q") != "":
		list = s.skills.Search(c.Query("q"))
	case c.Query("user_id") != "":
		list = s.skills.GetByUser(c.Query("user_id"))
	case c.Query("category") != "":
		list = s.skills.GetByCategory(models.SkillCategory(c.Query("category")))
	default:
		list = s.skills.Collection().Items()
	}
	return c.JSON(fiber.Map{
		"skills": list,
		"count":  len(list),
	})
}

// State возвращает состояние хранилища навыков
func (s *SkillsService) State(c fiber.Ctx) error {
	return c.JSON(s.skills.Collection().State())
}

// FetchSkills выполняет разовую полную загрузку навыков
func (s *SkillsService) FetchSkills(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	list, err := s.skills.Fetch(ctx)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(fiber.Map{
		"skills": list,
		"count":  len(list),
	})
}

// GetSkill возвращает навык по ID
func (s *SkillsService) GetSkill(c fiber.Ctx) error {
	skill, ok := s.skills.GetByID(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Навык не найден"})
	}
	return c.JSON(skill)
}

// CreateSkill добавляет навык текущему пользователю
func (s *SkillsService) CreateSkill(c fiber.Ctx) error {
	var draft store.SkillDraft
	if err := c.Bind().Body(&draft); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	skill, err := s.skills.Create(ctx, draft)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(skill)
}

// UpdateSkill меняет поля навыка владельца
func (s *SkillsService) UpdateSkill(c fiber.Ctx) error {
	var upd store.SkillUpdate
	if err := c.Bind().Body(&upd); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	skill, err := s.skills.Update(ctx, c.Params("id"), upd)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(skill)
}

// DeleteSkill удаляет навык владельца
func (s *SkillsService) DeleteSkill(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	if err := s.skills.Delete(ctx, c.Params("id")); err != nil {
		return middleware.Fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
