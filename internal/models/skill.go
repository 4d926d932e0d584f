package models

import "time"

// SkillCategory категория навыка
type SkillCategory string

const (
	CategoryTechnology SkillCategory = "technology"
	CategoryLanguage   SkillCategory = "language"
	CategoryArt        SkillCategory = "art"
	CategoryMusic      SkillCategory = "music"
	CategoryCooking    SkillCategory = "cooking"
	CategoryFitness    SkillCategory = "fitness"
	CategoryEducation  SkillCategory = "education"
	CategoryBusiness   SkillCategory = "business"
	CategoryCrafts     SkillCategory = "crafts"
	CategoryOther      SkillCategory = "other"
)

// SkillCategories перечисляет все допустимые категории
var SkillCategories = []SkillCategory{
	CategoryTechnology, CategoryLanguage, CategoryArt, CategoryMusic, CategoryCooking,
	CategoryFitness, CategoryEducation, CategoryBusiness, CategoryCrafts, CategoryOther,
}

// Valid проверяет, что категория входит в перечисление
func (c SkillCategory) Valid() bool {
	for _, v := range SkillCategories {
		if c == v {
			return true
		}
	}
	return false
}

// SkillLevel уровень владения навыком
type SkillLevel string

const (
	LevelBeginner     SkillLevel = "beginner"
	LevelIntermediate SkillLevel = "intermediate"
	LevelAdvanced     SkillLevel = "advanced"
	LevelExpert       SkillLevel = "expert"
)

// Valid проверяет, что уровень входит в перечисление
func (l SkillLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced, LevelExpert:
		return true
	}
	return false
}

// Skill представляет навык, который пользователь предлагает или ищет
type Skill struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Category    SkillCategory `json:"category"`
	Description string        `json:"description"`
	Level       SkillLevel    `json:"level"`
	Examples    []string      `json:"examples,omitempty"`
	UserID      string        `json:"user_id"`
	IsOffered   bool          `json:"is_offered"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (s Skill) EntityID() string { return s.ID }
