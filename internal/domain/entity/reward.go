package entity

import "time"

const (
	RewardMessageSent    = "chat.message_sent"
	RewardGroupCreated   = "chat.group_created"
	RewardInviteAccepted = "chat.invite_accepted"
)

// RewardEvent is handed to the gamification ledger. Nothing here waits on it.
type RewardEvent struct {
	Type           string    `json:"type"`
	UserID         string    `json:"userId"`
	ConversationID string    `json:"conversationId"`
	OccurredAt     time.Time `json:"occurredAt"`
}
