package service

import (
	"context"

	"coursehub/internal/domain/entity"
)

type RewardNotifier interface {
	Notify(ctx context.Context, evt entity.RewardEvent) error
}
