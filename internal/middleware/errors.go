package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
)

// StatusOf сопоставляет ошибку хранилищ с HTTP статусом
func StatusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, apperrors.ErrNotAuthenticated):
		return fiber.StatusUnauthorized
	case errors.Is(err, apperrors.ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, apperrors.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrAlreadyExists),
		errors.Is(err, apperrors.ErrInFlight),
		errors.Is(err, apperrors.ErrAlreadyRated):
		return fiber.StatusConflict
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return fiber.StatusBadRequest
	case apperrors.KindRemote:
		return fiber.StatusBadGateway
	}
	return fiber.StatusInternalServerError
}

// Fail отвечает JSON ошибкой с подходящим статусом
func Fail(c fiber.Ctx, err error) error {
	code := StatusOf(err)
	if code >= fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("ошибка обработки запроса")
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// BadRequest отвечает 400 с сообщением
func BadRequest(c fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}
