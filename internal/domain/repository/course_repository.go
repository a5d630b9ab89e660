package repository

import (
	"context"

	"coursehub/internal/domain/entity"
)

type CourseRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Course, error)
	// GetByCode matches the human readable course code, case-insensitively.
	GetByCode(ctx context.Context, code string) (*entity.Course, error)
}
