package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"streamify/internal/auth"
)

// UserIDLocalKey stores the authenticated user's ID in Fiber's context locals.
const UserIDLocalKey = "user_id"

// Auth verifies bearer tokens signed with the shared secret.
type Auth struct {
	secret string
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: secret}
}

// RequireAuth rejects requests without a bearer token (401) or with an invalid one (403).
func (a *Auth) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := bearerToken(c)
		if tok == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "token required")
		}
		claims, err := auth.Parse(a.secret, tok)
		if err != nil {
			return fiber.NewError(fiber.StatusForbidden, "invalid token")
		}
		c.Locals(UserIDLocalKey, claims.UserID)
		return c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise continues as an anonymous request.
func (a *Auth) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tok := bearerToken(c); tok != "" {
			if claims, err := auth.Parse(a.secret, tok); err == nil {
				c.Locals(UserIDLocalKey, claims.UserID)
			}
		}
		return c.Next()
	}
}

// UserID returns the authenticated user's ID, or "" for anonymous requests.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDLocalKey).(string)
	return id
}

// bearerToken reads the Authorization header, falling back to the token query
// parameter since a <video> element cannot send headers.
func bearerToken(c *fiber.Ctx) string {
	scheme, tok, ok := strings.Cut(c.Get(fiber.HeaderAuthorization), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(tok)
	}
	return c.Query("token")
}
