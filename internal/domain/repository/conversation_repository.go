package repository

import (
	"context"

	"coursehub/internal/domain/entity"
)

// Mutator edits a conversation in place. Returning an error aborts the
// update and nothing is written.
type Mutator func(conv *entity.Conversation) error

type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	// CreateDirect stores conv unless a conversation with the same direct
	// key exists; either way the stored conversation is returned.
	CreateDirect(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error)
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	FindDirect(ctx context.Context, userA, userB string) (*entity.Conversation, error)
	ListByParticipant(ctx context.Context, userID string) ([]*entity.Conversation, error)
	ListByPendingInvite(ctx context.Context, userID string) ([]*entity.Conversation, error)
	// Update serializes read-modify-write cycles on one conversation. The
	// mutated document is validated before it is stored.
	Update(ctx context.Context, id string, fn Mutator) (*entity.Conversation, error)
	// Delete removes the conversation together with its messages and
	// returns the state it had when removed. check runs on that state in
	// the same atomic step and can veto the delete; it may be nil.
	Delete(ctx context.Context, id string, check Mutator) (*entity.Conversation, error)
}
