package auth

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"tablekit-backend/internal/engine"
	"tablekit-backend/internal/store"
	"tablekit-backend/internal/table"
)

// Handler serves the authentication endpoints.
type Handler struct {
	store  *store.Store
	tokens *Tokens
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, tokens: NewTokens(jwtSecret)}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS _users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	roles JSONB NOT NULL DEFAULT '[]',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS _refresh_tokens (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES _users(id) ON DELETE CASCADE,
	token TEXT NOT NULL UNIQUE,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Bootstrap creates the auth system tables.
func (h *Handler) Bootstrap(ctx context.Context) error {
	_, err := h.store.Pool.Exec(ctx, schemaSQL)
	return err
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()
	user, err := store.QueryRow(ctx, h.store.Pool,
		"SELECT id, email, password_hash, roles, active FROM _users WHERE email = $1", body.Email)
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	active, _ := user["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	userID, _ := user["id"].(string)
	pair, err := h.generateTokenPair(ctx, userID, extractRoles(user["roles"]))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Refresh handles POST /api/auth/refresh with token rotation.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()
	row, err := store.QueryRow(ctx, h.store.Pool,
		`SELECT rt.id, rt.user_id, rt.expires_at, u.roles, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = $1`, body.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		_, _ = store.Exec(ctx, h.store.Pool,
			"DELETE FROM _refresh_tokens WHERE token = $1", body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}

	active, _ := row["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	tokenID, _ := row["id"].(string)
	_, _ = store.Exec(ctx, h.store.Pool, "DELETE FROM _refresh_tokens WHERE id = $1", tokenID)

	userID, _ := row["user_id"].(string)
	pair, err := h.generateTokenPair(ctx, userID, extractRoles(row["roles"]))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken != "" {
		_, _ = store.Exec(c.Context(), h.store.Pool,
			"DELETE FROM _refresh_tokens WHERE token = $1", body.RefreshToken)
	}
	return c.JSON(fiber.Map{"message": "Logged out"})
}

// RegisterRoutes registers auth routes on the given Fiber app.
func RegisterRoutes(app *fiber.App, h *Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)
}

func (h *Handler) generateTokenPair(ctx context.Context, userID string, roles []string) (*TokenPair, error) {
	accessToken, err := h.tokens.IssueAccess(&table.UserContext{ID: userID, Roles: roles})
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := h.tokens.IssueRefresh()
	_, err = store.Exec(ctx, h.store.Pool,
		"INSERT INTO _refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)",
		userID, refreshToken, h.tokens.RefreshExpiry())
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func extractRoles(v any) []string {
	switch roles := v.(type) {
	case []string:
		return roles
	case []any:
		result := make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return []string{}
	}
}
