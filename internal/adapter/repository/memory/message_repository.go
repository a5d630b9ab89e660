package memory

import (
	"context"
	"sort"
	"sync"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/repository"
	"coursehub/pkg/errors"
)

type MessageRepository struct {
	mu     sync.RWMutex
	byConv map[string][]*entity.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byConv: make(map[string][]*entity.Message)}
}

var _ repository.MessageRepository = (*MessageRepository)(nil)

func (r *MessageRepository) Create(_ context.Context, msg *entity.Message) error {
	if err := msg.Validate(); err != nil {
		return errors.BadRequest(err.Error(), err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *msg
	list := append(r.byConv[msg.ConversationID], &cp)
	// keep creation order even if timestamps arrive slightly out of order
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	r.byConv[msg.ConversationID] = list
	return nil
}

func (r *MessageRepository) GetByID(_ context.Context, conversationID, messageID string) (*entity.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, m := range r.byConv[conversationID] {
		if m.ID == messageID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, errors.NotFound("Message", nil)
}

func (r *MessageRepository) ListNewestFirst(_ context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := r.byConv[conversationID]
	total := int64(len(all))

	out := make([]*entity.Message, 0, limit)
	if offset < 0 || offset >= len(all) {
		return out, total, nil
	}
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		cp := *all[i]
		out = append(out, &cp)
	}
	return out, total, nil
}

func (r *MessageRepository) deleteConversation(conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConv, conversationID)
}
