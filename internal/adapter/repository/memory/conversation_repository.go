// Package memory holds process-local repositories used by tests and by the
// memory store backend.
package memory

import (
	"context"
	"sync"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
)

type ConversationRepository struct {
	mu       sync.Mutex
	convs    map[string]*entity.Conversation
	messages *MessageRepository
}

// NewConversationRepository deletes messages through msgs when a group is
// deleted; msgs may be nil.
func NewConversationRepository(msgs *MessageRepository) *ConversationRepository {
	return &ConversationRepository{
		convs:    make(map[string]*entity.Conversation),
		messages: msgs,
	}
}

var _ repository.ConversationRepository = (*ConversationRepository)(nil)

func (r *ConversationRepository) Create(_ context.Context, conv *entity.Conversation) error {
	if err := conv.Validate(); err != nil {
		return errors.Internal("Invalid conversation", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.convs[conv.ID]; exists {
		return errors.Conflict("Conversation already exists")
	}
	r.convs[conv.ID] = conv.Clone()
	return nil
}

func (r *ConversationRepository) CreateDirect(_ context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	if err := conv.Validate(); err != nil {
		return nil, errors.Internal("Invalid conversation", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.convs {
		if !existing.IsGroup && existing.DirectKey == conv.DirectKey {
			return existing.Clone(), nil
		}
	}
	r.convs[conv.ID] = conv.Clone()
	return conv.Clone(), nil
}

func (r *ConversationRepository) GetByID(_ context.Context, id string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	return conv.Clone(), nil
}

func (r *ConversationRepository) FindDirect(_ context.Context, userA, userB string) (*entity.Conversation, error) {
	key := entity.DirectKey(userA, userB)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, conv := range r.convs {
		if !conv.IsGroup && conv.DirectKey == key {
			return conv.Clone(), nil
		}
	}
	return nil, errors.NotFound("Conversation", nil)
}

func (r *ConversationRepository) ListByParticipant(_ context.Context, userID string) ([]*entity.Conversation, error) {
	return r.filter(func(c *entity.Conversation) bool { return c.HasParticipant(userID) }), nil
}

func (r *ConversationRepository) ListByPendingInvite(_ context.Context, userID string) ([]*entity.Conversation, error) {
	return r.filter(func(c *entity.Conversation) bool { return c.IsPending(userID) }), nil
}

func (r *ConversationRepository) filter(keep func(*entity.Conversation) bool) []*entity.Conversation {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*entity.Conversation
	for _, conv := range r.convs {
		if keep(conv) {
			out = append(out, conv.Clone())
		}
	}
	entity.SortByActivity(out)
	return out
}

// Update holds the store lock for the whole cycle, which serializes
// mutations of every conversation. Fine for tests and a single process.
func (r *ConversationRepository) Update(_ context.Context, id string, fn repository.Mutator) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.convs[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}

	working := current.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	if err := working.Validate(); err != nil {
		return nil, errors.Internal("Conversation update broke an invariant", err)
	}

	r.convs[id] = working
	return working.Clone(), nil
}

func (r *ConversationRepository) Delete(_ context.Context, id string, check repository.Mutator) (*entity.Conversation, error) {
	r.mu.Lock()
	conv, ok := r.convs[id]
	if !ok {
		r.mu.Unlock()
		return nil, errors.NotFound("Conversation", nil)
	}
	if check != nil {
		if err := check(conv.Clone()); err != nil {
			r.mu.Unlock()
			return nil, err
		}
	}
	delete(r.convs, id)
	r.mu.Unlock()

	if r.messages != nil {
		r.messages.deleteConversation(id)
	}
	return conv.Clone(), nil
}

// Put stores conv as is; fixtures only.
func (r *ConversationRepository) Put(conv *entity.Conversation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs[conv.ID] = conv.Clone()
}
