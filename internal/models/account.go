package models

import "time"

// Максимальное количество навыков в каждом списке пользователя
const MaxSkillsPerList = 3

// Account представляет профиль пользователя
type Account struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	DisplayName        string    `json:"display_name"`
	Bio                string    `json:"bio,omitempty"`
	Avatar             string    `json:"avatar,omitempty"`
	Location           Location  `json:"location"`
	SkillsOffered      []string  `json:"skills_offered"`
	SkillsNeeded       []string  `json:"skills_needed"`
	TrustScore         float64   `json:"trust_score"`
	MemberSince        time.Time `json:"member_since"`
	IsVerified         bool      `json:"is_verified"`
	CompletedExchanges int       `json:"completed_exchanges"`
}

// Location описывает местоположение пользователя
type Location struct {
	City        string       `json:"city"`
	Country     string       `json:"country"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

// Coordinates содержит географические координаты
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid проверяет диапазоны широты и долготы
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

func (a Account) EntityID() string { return a.ID }

// SkillList возвращает список навыков нужного типа
func (a Account) SkillList(offered bool) []string {
	if offered {
		return a.SkillsOffered
	}
	return a.SkillsNeeded
}

// SkillListField возвращает имя поля документа для списка навыков
func SkillListField(offered bool) string {
	if offered {
		return "skills_offered"
	}
	return "skills_needed"
}

// Name возвращает отображаемое имя или username
func (a Account) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}
