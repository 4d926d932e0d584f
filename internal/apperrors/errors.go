package apperrors

import (
	"errors"
	"fmt"
)

// Kind классифицирует ошибку по месту ее возникновения
type Kind string

const (
	KindValidation   Kind = "validation"
	KindRemote       Kind = "remote"
	KindSubscription Kind = "subscription"
	KindFanout       Kind = "fanout"
)

// Базовые ошибки, которые проверяются через errors.Is
var (
	ErrNotAuthenticated  = errors.New("user is not authenticated")
	ErrForbidden         = errors.New("operation is not allowed for this user")
	ErrNotFound          = errors.New("entity not found")
	ErrAlreadyExists     = errors.New("entity already exists")
	ErrInFlight          = errors.New("operation is already in progress")
	ErrSkillLimit        = errors.New("skill limit reached")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyRated      = errors.New("rating already submitted")
	ErrInvalidInput      = errors.New("invalid input")
)

// Error оборачивает причину и помечает ее категорией
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Field, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Validation создает ошибку валидации, обнаруженную до обращения к сети
func Validation(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

// Required сообщает об отсутствующем обязательном поле
func Required(op, field string) error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: fmt.Errorf("%w: field is required", ErrInvalidInput)}
}

// Invalid сообщает о недопустимом значении поля
func Invalid(op, field, reason string) error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: fmt.Errorf("%w: %s", ErrInvalidInput, reason)}
}

// Remote оборачивает ошибку записи в удаленный источник
func Remote(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindValidation {
		return err
	}
	return &Error{Kind: KindRemote, Op: op, Err: err}
}

// Subscription оборачивает ошибку живого запроса
func Subscription(scope string, err error) error {
	return &Error{Kind: KindSubscription, Op: scope, Err: err}
}

// Fanout оборачивает ошибку записи уведомления
func Fanout(op string, err error) error {
	return &Error{Kind: KindFanout, Op: op, Err: err}
}

// KindOf возвращает категорию ошибки или пустую строку
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation проверяет, что ошибка обнаружена локально
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}
