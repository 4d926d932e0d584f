package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
	"github.com/rajivgeraev/skillswap-api/internal/remote"
)

// CredentialsCollection коллекция с хешами паролей, ключ документа email
const CredentialsCollection = "credentials"

// Минимальная длина пароля
const MinPasswordLength = 6

type credential struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// PasswordProvider вход по email и паролю
type PasswordProvider struct {
	backend remote.Backend
	cost    int
}

// NewPasswordProvider создает новый экземпляр PasswordProvider
func NewPasswordProvider(backend remote.Backend) *PasswordProvider {
	return &PasswordProvider{backend: backend, cost: bcrypt.DefaultCost}
}

// WithCost задает стоимость bcrypt, в тестах используется bcrypt.MinCost
func (p *PasswordProvider) WithCost(cost int) *PasswordProvider {
	p.cost = cost
	return p
}

func (p *PasswordProvider) Name() string { return "password" }

// NormalizeEmail приводит email к ключу документа
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Enroll сохраняет хеш пароля и возвращает идентификатор нового пользователя
func (p *PasswordProvider) Enroll(ctx context.Context, email, password string) (string, error) {
	const op = "identity.enroll"
	key := NormalizeEmail(email)
	if key == "" || !strings.Contains(key, "@") {
		return "", apperrors.Invalid(op, "email", "a valid email is required")
	}
	if len(password) < MinPasswordLength {
		return "", apperrors.Invalid(op, "password", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("ошибка хеширования пароля: %w", err)
	}
	cred := credential{
		ID:           key,
		UserID:       uuid.NewString(),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := p.backend.Create(ctx, CredentialsCollection, key, cred); err != nil {
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return "", apperrors.Validation(op, fmt.Errorf("%w: %w", apperrors.ErrAlreadyExists, ErrEmailTaken))
		}
		return "", apperrors.Remote(op, err)
	}
	return cred.UserID, nil
}

// Withdraw удаляет учетные данные, если регистрация не завершилась
func (p *PasswordProvider) Withdraw(ctx context.Context, email string) error {
	return p.backend.Delete(ctx, CredentialsCollection, NormalizeEmail(email))
}

// Authenticate проверяет пароль
func (p *PasswordProvider) Authenticate(ctx context.Context, creds Credentials) (Identity, error) {
	const op = "identity.password"
	key := NormalizeEmail(creds.Email)
	if key == "" {
		return Identity{}, apperrors.Required(op, "email")
	}
	if creds.Password == "" {
		return Identity{}, apperrors.Required(op, "password")
	}

	doc, err := p.backend.Get(ctx, CredentialsCollection, key)
	if errors.Is(err, apperrors.ErrNotFound) {
		return Identity{}, invalidCredentials(op)
	}
	if err != nil {
		return Identity{}, apperrors.Remote(op, err)
	}
	var cred credential
	if err := doc.Decode(&cred); err != nil {
		return Identity{}, apperrors.Remote(op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(creds.Password)); err != nil {
		return Identity{}, invalidCredentials(op)
	}
	return Identity{UserID: cred.UserID, Email: key}, nil
}

func invalidCredentials(op string) error {
	return apperrors.Validation(op, fmt.Errorf("%w: %w", apperrors.ErrNotAuthenticated, ErrInvalidCredentials))
}
