package repository

import (
	"context"

	"coursehub/internal/domain/entity"
)

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	// GetByIDs skips ids that do not resolve.
	GetByIDs(ctx context.Context, ids []string) ([]*entity.User, error)
}
