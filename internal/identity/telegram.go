package identity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
)

// Срок действия initData по умолчанию
const DefaultInitDataExpiration = 24 * time.Hour

// TelegramProvider вход через подписанные данные Telegram Mini App
type TelegramProvider struct {
	botToken   string
	expiration time.Duration
}

// NewTelegramProvider создает новый экземпляр TelegramProvider
func NewTelegramProvider(botToken string) *TelegramProvider {
	return &TelegramProvider{botToken: botToken, expiration: DefaultInitDataExpiration}
}

func (p *TelegramProvider) Name() string { return "telegram" }

// TelegramUserID строит идентификатор пользователя из Telegram ID
func TelegramUserID(id int64) string {
	return "tg-" + strconv.FormatInt(id, 10)
}

// Authenticate проверяет подпись initData и возвращает данные пользователя Telegram
func (p *TelegramProvider) Authenticate(_ context.Context, creds Credentials) (Identity, error) {
	const op = "identity.telegram"
	if creds.InitData == "" {
		return Identity{}, apperrors.Required(op, "init_data")
	}
	if p.botToken == "" {
		return Identity{}, apperrors.Validation(op, fmt.Errorf("%w: telegram login is not configured", apperrors.ErrForbidden))
	}

	// Проверяем initData
	if err := initdata.Validate(creds.InitData, p.botToken, p.expiration); err != nil {
		return Identity{}, apperrors.Validation(op, fmt.Errorf("%w: %w: %v", apperrors.ErrNotAuthenticated, ErrInvalidCredentials, err))
	}

	// Парсим данные
	data, err := initdata.Parse(creds.InitData)
	if err != nil {
		return Identity{}, apperrors.Invalid(op, "init_data", err.Error())
	}
	if data.User.ID == 0 {
		return Identity{}, apperrors.Invalid(op, "init_data", "user is missing")
	}

	displayName := strings.TrimSpace(data.User.FirstName + " " + data.User.LastName)
	username := data.User.Username
	if username == "" {
		username = TelegramUserID(data.User.ID)
	}
	if displayName == "" {
		displayName = username
	}
	return Identity{
		UserID:      TelegramUserID(data.User.ID),
		Username:    username,
		DisplayName: displayName,
		Avatar:      data.User.PhotoURL,
		Verified:    true,
	}, nil
}
