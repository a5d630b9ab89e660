package websocket

import (
	"context"
	"encoding/json"
	"time"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/usecase"
	"coursehub/pkg/errors"
	"coursehub/pkg/logger"
)

const (
	laneBuffer     = 32
	laneIdle       = 30 * time.Second
	handlerTimeout = 15 * time.Second
)

// ChatService is the part of the chat use-case the socket dispatches into.
type ChatService interface {
	SendMessage(ctx context.Context, senderID string, input usecase.SendMessageInput) (*entity.Message, error)
	HandleTyping(ctx context.Context, userID string, input usecase.TypingInput) error
	MarkRead(ctx context.Context, userID, conversationID, messageID string) (*entity.Conversation, error)
}

// HandleClientMessage decodes one inbound frame. Ping is answered inline;
// everything else goes to the lane of its conversation so that events for
// one conversation run in order while different conversations proceed
// independently.
func (m *Manager) HandleClientMessage(client *Client, raw []byte) {
	var env event.Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Type == "" {
		logger.Debug("WebSocket: malformed frame from %s: %v", client.UserID, err)
		client.reply(event.New(event.TypeError, event.ErrorPayload{
			Code:    errors.CodeBadRequest,
			Message: "Invalid message format",
		}))
		return
	}

	switch env.Type {
	case event.TypePing:
		client.reply(env.Reply(event.TypePong, nil))

	case event.TypeSend, event.TypeTyping, event.TypeRead:
		var target event.Target
		if err := env.Decode(&target); err != nil {
			client.reply(env.Reply(event.TypeError, event.ErrorPayload{
				Code:    errors.CodeBadRequest,
				Message: "Invalid " + env.Type + " payload",
			}))
			return
		}
		client.dispatch(target.Lane(), env)

	default:
		client.reply(env.Reply(event.TypeError, event.ErrorPayload{
			Code:    errors.CodeBadRequest,
			Message: "Unknown event type " + env.Type,
		}))
	}
}

// dispatch hands env to the lane worker, starting one if needed. It blocks
// only while that lane's buffer is full.
func (c *Client) dispatch(lane string, env event.Envelope) {
	c.lanesMu.Lock()
	ch, ok := c.lanes[lane]
	if !ok {
		ch = make(chan event.Envelope, laneBuffer)
		c.lanes[lane] = ch
		go c.runLane(lane, ch)
	}
	select {
	case ch <- env:
		c.lanesMu.Unlock()
		return
	default:
	}
	// a full lane is never retired, so it is safe to wait unlocked
	c.lanesMu.Unlock()

	select {
	case ch <- env:
	case <-c.ctx.Done():
	}
}

func (c *Client) runLane(lane string, ch chan event.Envelope) {
	idle := time.NewTimer(laneIdle)
	defer idle.Stop()

	for {
		select {
		case env := <-ch:
			c.manager.handle(c, env)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(laneIdle)

		case <-idle.C:
			c.lanesMu.Lock()
			if len(ch) == 0 {
				delete(c.lanes, lane)
				c.lanesMu.Unlock()
				return
			}
			c.lanesMu.Unlock()
			idle.Reset(laneIdle)

		case <-c.ctx.Done():
			return
		}
	}
}

func (m *Manager) handle(c *Client, env event.Envelope) {
	if m.chat == nil {
		c.reply(env.Reply(event.TypeError, event.ErrorPayload{Code: errors.CodeInternal, Message: "Chat is unavailable"}))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	switch env.Type {
	case event.TypeSend:
		m.handleSend(ctx, c, env)
	case event.TypeTyping:
		m.handleTyping(ctx, c, env)
	case event.TypeRead:
		m.handleRead(ctx, c, env)
	}
}

func (m *Manager) handleSend(ctx context.Context, c *Client, env event.Envelope) {
	var p event.SendPayload
	if err := env.Decode(&p); err != nil {
		c.reply(env.Reply(event.TypeAck, failure(p.ClientID, errors.BadRequest("Invalid send payload", err))))
		return
	}

	msg, err := m.chat.SendMessage(ctx, c.UserID, usecase.SendMessageInput{
		ConversationID: p.ConversationID,
		To:             p.To,
		Content:        p.Content,
		Attachments:    p.Attachments,
		ClientID:       p.ClientID,
	})
	if err != nil {
		logger.Debug("WebSocket: send from %s rejected: %v", c.UserID, err)
		c.reply(env.Reply(event.TypeAck, failure(p.ClientID, err)))
		return
	}
	c.reply(env.Reply(event.TypeAck, event.AckPayload{OK: true, ClientID: p.ClientID, Message: msg}))
}

func (m *Manager) handleTyping(ctx context.Context, c *Client, env event.Envelope) {
	var p event.TypingPayload
	if err := env.Decode(&p); err != nil {
		logger.Debug("WebSocket: bad typing payload from %s: %v", c.UserID, err)
		return
	}
	err := m.chat.HandleTyping(ctx, c.UserID, usecase.TypingInput{
		ConversationID: p.ConversationID,
		To:             p.To,
		Typing:         p.Typing,
	})
	if err != nil {
		logger.Debug("WebSocket: typing from %s dropped: %v", c.UserID, err)
	}
}

func (m *Manager) handleRead(ctx context.Context, c *Client, env event.Envelope) {
	var p event.ReadPayload
	if err := env.Decode(&p); err != nil || p.ConversationID == "" {
		c.reply(env.Reply(event.TypeAck, failure("", errors.BadRequest("conversationId is required", err))))
		return
	}
	if _, err := m.chat.MarkRead(ctx, c.UserID, p.ConversationID, p.MessageID); err != nil {
		c.reply(env.Reply(event.TypeAck, failure("", err)))
		return
	}
	c.reply(env.Reply(event.TypeAck, event.AckPayload{OK: true}))
}

func failure(clientID string, err error) event.AckPayload {
	return event.AckPayload{
		ClientID: clientID,
		Error: &event.ErrorPayload{
			Code:    errors.CodeOf(err),
			Message: errors.MessageOf(err),
		},
	}
}
