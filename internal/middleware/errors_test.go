package middleware

import (
	"errors"
	"fmt"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/apperrors"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"required field", apperrors.Required("op", "name"), fiber.StatusBadRequest},
		{"not authenticated", apperrors.Validation("op", apperrors.ErrNotAuthenticated), fiber.StatusUnauthorized},
		{"forbidden", apperrors.Validation("op", apperrors.ErrForbidden), fiber.StatusForbidden},
		{"not found", apperrors.Remote("op", fmt.Errorf("doc x: %w", apperrors.ErrNotFound)), fiber.StatusNotFound},
		{"in flight", apperrors.Validation("op", apperrors.ErrInFlight), fiber.StatusConflict},
		{"already rated", apperrors.Validation("op", apperrors.ErrAlreadyRated), fiber.StatusConflict},
		{"remote", apperrors.Remote("op", errors.New("quota exceeded")), fiber.StatusBadGateway},
		{"fiber", fiber.NewError(fiber.StatusRequestEntityTooLarge, "too big"), fiber.StatusRequestEntityTooLarge},
		{"unknown", errors.New("boom"), fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusOf(tc.err); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}
