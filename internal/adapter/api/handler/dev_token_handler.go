package handler

import (
	"github.com/labstack/echo/v4"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
	"coursehub/pkg/response"
)

// TokenIssuer mints bearer tokens for local development.
type TokenIssuer interface {
	Generate(id entity.Identity) (string, error)
}

type DevTokenHandler struct {
	issuer   TokenIssuer
	userRepo repository.UserRepository
}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler(issuer TokenIssuer, userRepo repository.UserRepository) *DevTokenHandler {
	return &DevTokenHandler{
		issuer:   issuer,
		userRepo: userRepo,
	}
}

func SetupDevTokenHandler(issuer TokenIssuer, userRepo repository.UserRepository) {
	devTokenHandler = NewDevTokenHandler(issuer, userRepo)
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

// GenerateUserToken issues a token for an existing user so the CLI and
// manual tests can connect without an identity provider.
func (h *DevTokenHandler) GenerateUserToken(c echo.Context) error {
	user, err := h.userRepo.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return response.Error(c, err)
	}
	if !user.IsActive() {
		return response.Error(c, errors.Forbidden("Account is suspended", nil))
	}

	token, err := h.issuer.Generate(entity.Identity{
		UserID: user.ID,
		Role:   user.Role,
		Name:   user.FullName,
		Email:  user.Email,
	})
	if err != nil {
		return response.Error(c, errors.Internal("Failed to issue token", err))
	}

	return response.Success(c, map[string]interface{}{
		"token": token,
		"user":  user.Summary(),
	})
}
