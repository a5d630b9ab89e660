package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/service"
	"coursehub/pkg/errors"
	"coursehub/pkg/response"
)

const (
	ContextUserID   = "uid"
	ContextIdentity = "identity"
)

type AuthMiddleware struct {
	verifier service.IdentityVerifier
}

func NewAuthMiddleware(verifier service.IdentityVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := BearerToken(c.Request().Header.Get("Authorization"))
		if !ok {
			return response.Error(c, errors.Unauthorized("Authorization header is required", nil))
		}

		identity, err := m.verifier.Verify(c.Request().Context(), token)
		if err != nil {
			return response.Error(c, errors.Unauthorized("Invalid or expired token", err))
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextIdentity, *identity)
		return next(c)
	}
}

// Verify checks a raw token outside the middleware chain, e.g. for socket
// upgrades that carry the token in the query string.
func (m *AuthMiddleware) Verify(c echo.Context, token string) (*entity.Identity, error) {
	if token == "" {
		return nil, errors.Unauthorized("Token is required", nil)
	}
	identity, err := m.verifier.Verify(c.Request().Context(), token)
	if err != nil {
		return nil, errors.Unauthorized("Invalid or expired token", err)
	}
	return identity, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
