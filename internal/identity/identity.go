// Package identity проверяет учетные данные пользователя: пароль или данные Telegram Mini App
package identity

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email is already registered")
)

// Credentials данные для входа; провайдер использует только свои поля
type Credentials struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	InitData string `json:"init_data,omitempty"`
}

// Identity подтвержденная личность пользователя
type Identity struct {
	UserID      string
	Email       string
	Username    string
	DisplayName string
	Avatar      string
	Verified    bool
}

// Provider проверяет учетные данные
type Provider interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (Identity, error)
}
