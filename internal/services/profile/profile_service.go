package profile

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// ProfileService API профилей пользователей
type ProfileService struct {
	accounts *store.AccountStore
	ratings  *store.RatingStore
}

// NewProfileService создает новый экземпляр ProfileService
func NewProfileService(accounts *store.AccountStore, ratings *store.RatingStore) *ProfileService {
	return &ProfileService{accounts: accounts, ratings: ratings}
}

// GetProfile возвращает профиль текущего пользователя
func (s *ProfileService) GetProfile(c fiber.Ctx) error {
	return s.view(c, middleware.UserID(c))
}

// GetUser возвращает профиль пользователя вместе с оценками
func (s *ProfileService) GetUser(c fiber.Ctx) error {
	return s.view(c, c.Params("id"))
}

// view пересчитывает рейтинг доверия при чтении оценок
func (s *ProfileService) view(c fiber.Ctx, userID string) error {
	ctx, cancel := db.GetContext()
	defer cancel()

	ratings, err := s.ratings.UserRatings(ctx, userID)
	if err != nil {
		return middleware.Fail(c, err)
	}
	acc, err := s.accounts.Fetch(ctx, userID)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(fiber.Map{
		"user":    acc,
		"ratings": ratings,
	})
}

// UpdateProfile меняет профиль текущего пользователя
func (s *ProfileService) UpdateProfile(c fiber.Ctx) error {
	var upd store.ProfileUpdate
	if err := c.Bind().Body(&upd); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	acc, err := s.accounts.UpdateProfile(ctx, upd)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(acc)
}

// SearchUsers ищет пользователей среди загруженных профилей
func (s *ProfileService) SearchUsers(c fiber.Ctx) error {
	users := s.accounts.Search(c.Query("q"))
	return c.JSON(fiber.Map{
		"users": users,
		"count": len(users),
	})
}
