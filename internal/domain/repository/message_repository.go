package repository

import (
	"context"

	"coursehub/internal/domain/entity"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	GetByID(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	// ListNewestFirst skips offset messages from the newest and returns up to
	// limit, newest first, along with the conversation's message count.
	ListNewestFirst(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)
}
