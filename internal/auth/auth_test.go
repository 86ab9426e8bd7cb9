package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tradeops-backend/internal/config"
	"tradeops-backend/internal/models"
	"tradeops-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCfg = &config.Config{JWTSecret: strings.Repeat("k", 32)}

func TestGenerateAndParseToken(t *testing.T) {
	user := &models.User{ID: 7, Name: "Ana", Email: "ana@example.com", Role: models.RoleOperator}

	tok, err := GenerateToken(testCfg.JWTSecret, user)
	require.NoError(t, err)

	claims, err := ParseToken(testCfg.JWTSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "Ana", claims.Name)
	assert.Equal(t, models.RoleOperator, claims.Role)

	_, err = ParseToken(strings.Repeat("x", 32), tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newApp(s store.Store) *fiber.App {
	app := fiber.New()
	app.Post("/auth/bootstrap-admin", BootstrapAdminHandler(s))
	app.Post("/auth/login", LoginHandler(testCfg, s))

	protected := app.Group("", JWTMiddleware(testCfg))
	protected.Get("/me", MeHandler(s))
	protected.Get("/admin-only", RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		a := ActorFrom(c)
		return c.JSON(fiber.Map{"id": a.UserID, "name": a.UserName})
	})
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body, token string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestBootstrapLoginAndRoleGate(t *testing.T) {
	s := store.NewMemoryStore()
	app := newApp(s)

	resp := doJSON(t, app, http.MethodPost, "/auth/bootstrap-admin",
		`{"name":"Root","email":"Root@Example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/auth/bootstrap-admin",
		`{"name":"Other","email":"other@example.com","password":"secret"}`, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/auth/login", `{"email":"root@example.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/auth/login", `{"email":"root@example.com","password":"secret"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&login))
	require.NotEmpty(t, login.Token)

	resp = doJSON(t, app, http.MethodGet, "/admin-only", "", login.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var actor struct {
		ID   uint   `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&actor))
	assert.Equal(t, "Root", actor.Name)
	assert.NotZero(t, actor.ID)
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	app := newApp(store.NewMemoryStore())

	resp := doJSON(t, app, http.MethodGet, "/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/me", "", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRequireRole_Operator(t *testing.T) {
	app := newApp(store.NewMemoryStore())
	tok, err := GenerateToken(testCfg.JWTSecret, &models.User{ID: 3, Name: "Op", Role: models.RoleOperator})
	require.NoError(t, err)

	resp := doJSON(t, app, http.MethodGet, "/admin-only", "", tok)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
