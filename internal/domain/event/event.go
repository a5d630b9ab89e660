// Package event defines the real-time wire protocol shared by the gateway,
// the use-cases that publish into it and the Go client.
package event

import (
	"encoding/json"
	"time"

	"coursehub/internal/domain/entity"
)

const (
	// client -> server
	TypeSend   = "send"
	TypeTyping = "typing"
	TypeRead   = "read"
	TypePing   = "ping"

	// server -> client
	TypeAck          = "ack"
	TypeMessage      = "message"
	TypeUnread       = "unread"
	TypePresence     = "presence"
	TypeGroupInvited = "group:invited"
	TypeGroupUpdated = "group:updated"
	TypeGroupDeleted = "group:deleted"
	TypeError        = "error"
	TypePong         = "pong"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const (
	ReasonCreated  = "created"
	ReasonInvited  = "invited"
	ReasonAccepted = "accepted"
	ReasonRejected = "rejected"
	ReasonLeft     = "left"
)

type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New wraps payload in an envelope. Payloads are plain structs, so marshal
// failures are programming errors and yield an empty data field.
func New(typ string, payload interface{}) Envelope {
	env := Envelope{Type: typ, Timestamp: time.Now().UTC()}
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			env.Data = raw
		}
	}
	return env
}

func (e Envelope) Reply(typ string, payload interface{}) Envelope {
	out := New(typ, payload)
	out.RequestID = e.RequestID
	return out
}

func (e Envelope) Decode(v interface{}) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("{}"), v)
	}
	return json.Unmarshal(e.Data, v)
}

type SendPayload struct {
	ConversationID string              `json:"conversationId,omitempty"`
	To             string              `json:"to,omitempty"`
	Content        string              `json:"content,omitempty"`
	Attachments    []entity.Attachment `json:"attachments,omitempty"`
	ClientID       string              `json:"clientId,omitempty"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId,omitempty"`
	To             string `json:"to,omitempty"`
	From           string `json:"from,omitempty"`
	Typing         bool   `json:"typing"`
}

type ReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId,omitempty"`
	UserID         string `json:"userId,omitempty"`
}

type MessagePayload struct {
	ConversationID string          `json:"conversationId"`
	Message        *entity.Message `json:"message"`
	ClientID       string          `json:"clientId,omitempty"`
}

type UnreadPayload struct {
	ConversationID string         `json:"conversationId"`
	Unread         map[string]int `json:"unread"`
}

type PresencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type GroupPayload struct {
	Conversation *entity.Conversation `json:"conversation"`
	Reason       string               `json:"reason,omitempty"`
	UserID       string               `json:"userId,omitempty"`
}

type GroupDeletedPayload struct {
	ConversationID string `json:"conversationId"`
	Name           string `json:"name"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckPayload struct {
	OK       bool            `json:"ok"`
	ClientID string          `json:"clientId,omitempty"`
	Message  *entity.Message `json:"message,omitempty"`
	Error    *ErrorPayload   `json:"error,omitempty"`
}

// Target extracts the routing fields shared by send, typing and read.
type Target struct {
	ConversationID string `json:"conversationId"`
	To             string `json:"to"`
}

// Lane names the ordering domain of an inbound event.
func (t Target) Lane() string {
	if t.ConversationID != "" {
		return t.ConversationID
	}
	if t.To != "" {
		return "to:" + t.To
	}
	return ""
}
