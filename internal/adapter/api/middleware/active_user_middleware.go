package middleware

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
	"coursehub/pkg/response"
)

// ActiveUserMiddleware turns away suspended or unknown accounts. It must run
// after Authenticate.
type ActiveUserMiddleware struct {
	userRepo repository.UserRepository
}

func NewActiveUserMiddleware(userRepo repository.UserRepository) *ActiveUserMiddleware {
	return &ActiveUserMiddleware{
		userRepo: userRepo,
	}
}

func (m *ActiveUserMiddleware) RequireActive(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid, ok := c.Get(ContextUserID).(string)
		if !ok || uid == "" {
			return response.Error(c, errors.Unauthorized("Authentication required", nil))
		}

		user, err := m.userRepo.GetByID(c.Request().Context(), uid)
		if err != nil {
			if errors.Is(err, errors.CodeNotFound) {
				return response.Error(c, errors.Forbidden("Account is not registered", nil))
			}
			logger.Error("RequireActive Error: user %s: %v", uid, err)
			return response.Error(c, err)
		}
		if !user.IsActive() {
			return response.Error(c, errors.Forbidden("Account is suspended", nil))
		}

		return next(c)
	}
}
