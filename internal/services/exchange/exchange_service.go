package exchange

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/store"
)

// ExchangeService API обменов навыками и их оценок
type ExchangeService struct {
	exchanges *store.ExchangeStore
	ratings   *store.RatingStore
}

// NewExchangeService создает новый экземпляр ExchangeService
func NewExchangeService(exchanges *store.ExchangeStore, ratings *store.RatingStore) *ExchangeService {
	return &ExchangeService{exchanges: exchanges, ratings: ratings}
}

// ListExchanges возвращает обмены текущего пользователя, опционально по статусу
func (s *ExchangeService) ListExchanges(c fiber.Ctx) error {
	userID := middleware.UserID(c)

	var list []models.Exchange
	if status := c.Query("status"); status != "" {
		st := models.ExchangeStatus(status)
		if !st.Valid() {
			return middleware.BadRequest(c, "Неизвестный статус обмена")
		}
		list = s.exchanges.GetByStatus(userID, st)
	} else {
		list = s.exchanges.GetUserExchanges(userID)
	}
	return c.JSON(fiber.Map{
		"exchanges": list,
		"count":     len(list),
	})
}

// State возвращает состояние хранилища обменов
func (s *ExchangeService) State(c fiber.Ctx) error {
	return c.JSON(s.exchanges.Collection().State())
}

// CreateExchange предлагает обмен
func (s *ExchangeService) CreateExchange(c fiber.Ctx) error {
	var draft store.ExchangeDraft
	if err := c.Bind().Body(&draft); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	ex, err := s.exchanges.Create(ctx, draft)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(ex)
}

// GetExchange возвращает обмен и доступные текущему пользователю переходы
func (s *ExchangeService) GetExchange(c fiber.Ctx) error {
	userID := middleware.UserID(c)
	ex, err := s.participantExchange(c.Params("id"), userID)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(fiber.Map{
		"exchange":    ex,
		"transitions": store.AllowedTransitions(ex, userID),
	})
}

// UpdateStatus меняет статус обмена
func (s *ExchangeService) UpdateStatus(c fiber.Ctx) error {
	var payload struct {
		Status models.ExchangeStatus `json:"status"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	ex, err := s.exchanges.UpdateStatus(ctx, c.Params("id"), payload.Status)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(ex)
}

// RateUser оценивает второго участника обмена
func (s *ExchangeService) RateUser(c fiber.Ctx) error {
	var draft store.RatingDraft
	if err := c.Bind().Body(&draft); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}
	draft.ExchangeID = c.Params("id")

	ctx, cancel := db.GetContext()
	defer cancel()

	rating, err := s.ratings.RateUser(ctx, draft)
	if err != nil && rating.ID == "" {
		return middleware.Fail(c, err)
	}
	resp := fiber.Map{"rating": rating}
	if err != nil {
		// оценка записана, но рейтинг доверия не пересчитан
		resp["warning"] = err.Error()
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// RateExchange оценивает сам обмен
func (s *ExchangeService) RateExchange(c fiber.Ctx) error {
	var draft store.RatingDraft
	if err := c.Bind().Body(&draft); err != nil {
		return middleware.BadRequest(c, "Неверный формат данных")
	}
	draft.ExchangeID = c.Params("id")
	draft.TargetUserID = ""

	ctx, cancel := db.GetContext()
	defer cancel()

	rating, err := s.ratings.RateExchange(ctx, draft)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"rating": rating})
}

// ListRatings возвращает оценки обмена
func (s *ExchangeService) ListRatings(c fiber.Ctx) error {
	if _, err := s.participantExchange(c.Params("id"), middleware.UserID(c)); err != nil {
		return middleware.Fail(c, err)
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	ratings, err := s.ratings.ExchangeRatings(ctx, c.Params("id"))
	if err != nil {
		return middleware.Fail(c, err)
	}
	rated, err := s.ratings.HasRated(ctx, c.Params("id"), middleware.UserID(c), models.RatingOfUser)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(fiber.Map{
		"ratings":        ratings,
		"has_rated_user": rated,
	})
}

// participantExchange возвращает обмен, если пользователь в нем участвует
func (s *ExchangeService) participantExchange(id, userID string) (models.Exchange, error) {
	ex, ok := s.exchanges.GetByID(id)
	if !ok {
		ctx, cancel := db.GetContext()
		defer cancel()

		var err error
		if ex, err = s.exchanges.Fetch(ctx, id); err != nil {
			return models.Exchange{}, err
		}
	}
	if !ex.Involves(userID) {
		return models.Exchange{}, fmt.Errorf("обмен %s: %w", id, apperrors.ErrForbidden)
	}
	return ex, nil
}
