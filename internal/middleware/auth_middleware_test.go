package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/skillswap-api/internal/models"
	"github.com/rajivgeraev/skillswap-api/internal/utils"
)

type fixedUser struct{ id string }

func (f fixedUser) CurrentAccount() (models.Account, bool) {
	return models.Account{ID: f.id}, f.id != ""
}

func newApp(jwt *utils.JWTService, current CurrentUser) *fiber.App {
	app := fiber.New()
	app.Get("/me", AuthMiddleware(jwt, current), func(c fiber.Ctx) error {
		return c.SendString(UserID(c))
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	jwt := utils.NewJWTService("secret")
	token, err := jwt.GenerateToken("u1")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	cases := []struct {
		name    string
		header  string
		current string
		want    int
	}{
		{"missing header", "", "u1", http.StatusUnauthorized},
		{"bad format", "Token " + token, "u1", http.StatusUnauthorized},
		{"bad token", "Bearer nope", "u1", http.StatusUnauthorized},
		{"other user", "Bearer " + token, "u2", http.StatusUnauthorized},
		{"anonymous session", "Bearer " + token, "", http.StatusUnauthorized},
		{"ok", "Bearer " + token, "u1", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newApp(jwt, fixedUser{id: tc.current})
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
