package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util"
)

type mockUserRepository struct {
	getByUsernameFunc func(ctx context.Context, username string) (*domain.User, error)
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	return errors.New("not implemented")
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if m.getByUsernameFunc != nil {
		return m.getByUsernameFunc(ctx, username)
	}
	return nil, pgx.ErrNoRows
}

func newTestApp(t *testing.T, repo *mockUserRepository, tm *TokenManager) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"error": fiber.Map{
				"code":    domainErr.Code,
				"message": domainErr.Message,
			}})
		},
	})
	mw := NewMiddleware(tm, repo)
	app.Get("/protected", mw.Handle, func(c *fiber.Ctx) error {
		user, ok := UserFromContext(c)
		if !ok {
			return errors.New("principal missing")
		}
		return c.JSON(fiber.Map{"username": user.Username})
	})
	return app
}

func doRequest(t *testing.T, app *fiber.App, authHeader string) (int, string) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestMiddlewareValidToken(t *testing.T) {
	tm := NewTokenManager(testSecret, 60)
	repo := &mockUserRepository{
		getByUsernameFunc: func(_ context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: 1, Username: username}, nil
		},
	}
	app := newTestApp(t, repo, tm)

	token, _, err := tm.GenerateToken("alice")
	require.NoError(t, err)

	status, body := doRequest(t, app, "Bearer "+token)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "alice")
}

func TestMiddlewareFailuresAreUniform(t *testing.T) {
	tm := NewTokenManager(testSecret, 60)
	repo := &mockUserRepository{
		getByUsernameFunc: func(_ context.Context, _ string) (*domain.User, error) {
			return nil, pgx.ErrNoRows
		},
	}
	app := newTestApp(t, repo, tm)

	validForUnknownUser, _, err := tm.GenerateToken("ghost")
	require.NoError(t, err)
	foreign, _, err := NewTokenManager("another-secret", 60).GenerateToken("alice")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"malformed token", "Bearer not-a-token"},
		{"bad signature", "Bearer " + foreign},
		{"unknown subject", "Bearer " + validForUnknownUser},
	}

	var firstBody string
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doRequest(t, app, tc.header)
			assert.Equal(t, http.StatusUnauthorized, status)
			if firstBody == "" {
				firstBody = body
				return
			}
			// Every failure branch must be externally indistinguishable.
			assert.Equal(t, firstBody, body)
		})
	}
}
