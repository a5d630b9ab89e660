package service

import (
	"context"

	"coursehub/internal/domain/entity"
)

// IdentityVerifier turns a bearer credential into a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*entity.Identity, error)
}
