package skills

import (
	"github.com/gofiber/fiber/v3"
)

// SetupRoutes настраивает маршруты для API навыков
func (s *SkillsService) SetupRoutes(app *fiber.App, authMiddleware fiber.Handler) {
	api := app.Group("/api/skills")
	api.Use(authMiddleware)

	api.Get("/", s.ListSkills)
	api.Get("/state", s.State)
	api.Post("/fetch", s.FetchSkills)
	api.Post("/", s.CreateSkill)
	api.Get("/:id", s.GetSkill)
	api.Put("/:id", s.UpdateSkill)
	api.Delete("/:id", s.DeleteSkill)
}
