package auth

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/db"
	"github.com/rajivgeraev/skillswap-api/internal/middleware"
	"github.com/rajivgeraev/skillswap-api/internal/session"
)

// AuthService обрабатывает вход, регистрацию и выход
type AuthService struct {
	session *session.Session
}

// NewAuthService создает новый экземпляр AuthService
func NewAuthService(sess *session.Session) *AuthService {
	return &AuthService{session: sess}
}

// Register регистрирует пользователя по email и паролю
func (s *AuthService) Register(c fiber.Ctx) error {
	var input session.RegisterInput
	if err := c.Bind().Body(&input); err != nil {
		return middleware.BadRequest(c, "Invalid request")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	st, err := s.session.Register(ctx, input)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(st)
}

// Login входит по email и паролю
func (s *AuthService) Login(c fiber.Ctx) error {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return middleware.BadRequest(c, "Invalid request")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	st, err := s.session.Login(ctx, payload.Email, payload.Password)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(st)
}

// TelegramAuthHandler проверяет initData Telegram Mini App и входит
func (s *AuthService) TelegramAuthHandler(c fiber.Ctx) error {
	var payload struct {
		InitData string `json:"init_data"`
	}
	if err := c.Bind().Body(&payload); err != nil {
		return middleware.BadRequest(c, "Invalid request")
	}

	ctx, cancel := db.GetContext()
	defer cancel()

	st, err := s.session.LoginTelegram(ctx, payload.InitData)
	if err != nil {
		return middleware.Fail(c, err)
	}
	return c.JSON(st)
}

// Logout закрывает сессию
func (s *AuthService) Logout(c fiber.Ctx) error {
	ctx, cancel := db.GetContext()
	defer cancel()
	return c.JSON(s.session.Logout(ctx))
}

// Current возвращает состояние сессии
func (s *AuthService) Current(c fiber.Ctx) error {
	return c.JSON(s.session.State())
}
