package entity

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxGroupNameLength = 100
	previewLength      = 120
)

// ParticipantState is the per-user read bookkeeping of a conversation.
type ParticipantState struct {
	Unread          int        `json:"unread" firestore:"unread"`
	LastSeen        *time.Time `json:"lastSeen,omitempty" firestore:"lastSeen,omitempty"`
	LastReadMessage string     `json:"lastReadMessage,omitempty" firestore:"lastReadMessage,omitempty"`
	LastReadAt      *time.Time `json:"lastReadAt,omitempty" firestore:"lastReadAt,omitempty"`
}

type Conversation struct {
	ID                 string                       `json:"id" firestore:"id"`
	IsGroup            bool                         `json:"isGroup" firestore:"isGroup"`
	Name               string                       `json:"name,omitempty" firestore:"name,omitempty"`
	Creator            string                       `json:"creator,omitempty" firestore:"creator,omitempty"`
	Course             string                       `json:"course,omitempty" firestore:"course,omitempty"`
	DirectKey          string                       `json:"-" firestore:"directKey,omitempty"`
	Participants       []string                     `json:"participants" firestore:"participants"`
	PendingInvites     []string                     `json:"pendingInvites" firestore:"pendingInvites"`
	ParticipantStates  map[string]*ParticipantState `json:"participantStates" firestore:"participantStates"`
	LastMessage        string                       `json:"lastMessage,omitempty" firestore:"lastMessage,omitempty"`
	LastMessageAt      *time.Time                   `json:"lastMessageAt,omitempty" firestore:"lastMessageAt,omitempty"`
	LastMessagePreview string                       `json:"lastMessagePreview,omitempty" firestore:"lastMessagePreview,omitempty"`
	CreatedAt          time.Time                    `json:"createdAt" firestore:"createdAt"`
	UpdatedAt          time.Time                    `json:"updatedAt" firestore:"updatedAt"`
}

// DirectKey identifies the unordered pair {a, b}.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

// DirectConversationID derives a stable document id from the pair key so
// that two concurrent creators collide on the same document.
func DirectConversationID(a, b string) string {
	return "dm_" + strings.ReplaceAll(DirectKey(a, b), ":", "_")
}

func NewDirectConversation(a, b string, now time.Time) *Conversation {
	return &Conversation{
		ID:             DirectConversationID(a, b),
		DirectKey:      DirectKey(a, b),
		Participants:   []string{a, b},
		PendingInvites: []string{},
		ParticipantStates: map[string]*ParticipantState{
			a: {},
			b: {},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewGroupConversation(id, creator, name, course string, now time.Time) *Conversation {
	return &Conversation{
		ID:                id,
		IsGroup:           true,
		Name:              strings.TrimSpace(name),
		Creator:           creator,
		Course:            course,
		Participants:      []string{creator},
		PendingInvites:    []string{},
		ParticipantStates: map[string]*ParticipantState{creator: {}},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (c *Conversation) HasParticipant(userID string) bool {
	return contains(c.Participants, userID)
}

func (c *Conversation) IsPending(userID string) bool {
	return contains(c.PendingInvites, userID)
}

// OtherParticipant returns the peer of userID in a direct conversation.
func (c *Conversation) OtherParticipant(userID string) string {
	if c.IsGroup {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// OthersThan lists every participant except userID.
func (c *Conversation) OthersThan(userID string) []string {
	out := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	return out
}

// Audience is every participant plus every pending invitee.
func (c *Conversation) Audience() []string {
	out := make([]string, 0, len(c.Participants)+len(c.PendingInvites))
	out = append(out, c.Participants...)
	return append(out, c.PendingInvites...)
}

func (c *Conversation) UnreadSnapshot() map[string]int {
	snapshot := make(map[string]int, len(c.ParticipantStates))
	for id, st := range c.ParticipantStates {
		snapshot[id] = st.Unread
	}
	return snapshot
}

// ActivityAt orders conversation lists: last message time, else update time.
func (c *Conversation) ActivityAt() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	return c.UpdatedAt
}

// RecordIncoming applies a freshly persisted message.
func (c *Conversation) RecordIncoming(msg *Message) {
	at := msg.CreatedAt
	c.LastMessage = msg.ID
	c.LastMessageAt = &at
	c.LastMessagePreview = msg.Preview()
	c.UpdatedAt = at

	for _, p := range c.Participants {
		st := c.state(p)
		if p == msg.SenderID {
			st.LastSeen = &at
			st.LastReadMessage = msg.ID
			st.LastReadAt = &at
			continue
		}
		st.Unread++
	}
}

// MarkRead clears the unread counter of userID. The read pointer only moves
// forward: a message older than the recorded one leaves it untouched.
func (c *Conversation) MarkRead(userID, messageID string, messageAt time.Time, now time.Time) {
	st := c.state(userID)
	st.Unread = 0
	st.LastSeen = &now
	if messageID != "" && (st.LastReadAt == nil || !messageAt.Before(*st.LastReadAt)) {
		at := messageAt
		st.LastReadMessage = messageID
		st.LastReadAt = &at
	}
	c.UpdatedAt = now
}

// AddPending admits userID to pendingInvites. It reports false when the user
// is already pending or already a participant.
func (c *Conversation) AddPending(userID string) bool {
	if c.HasParticipant(userID) || c.IsPending(userID) {
		return false
	}
	c.PendingInvites = append(c.PendingInvites, userID)
	return true
}

// Accept moves a pending user into participants with a fresh state.
func (c *Conversation) Accept(userID string, now time.Time) {
	c.PendingInvites = remove(c.PendingInvites, userID)
	if !c.HasParticipant(userID) {
		c.Participants = append(c.Participants, userID)
	}
	c.ParticipantStates[userID] = &ParticipantState{LastSeen: &now}
	c.UpdatedAt = now
}

func (c *Conversation) Reject(userID string, now time.Time) {
	c.PendingInvites = remove(c.PendingInvites, userID)
	c.UpdatedAt = now
}

func (c *Conversation) RemoveParticipant(userID string, now time.Time) {
	c.Participants = remove(c.Participants, userID)
	delete(c.ParticipantStates, userID)
	c.UpdatedAt = now
}

func (c *Conversation) state(userID string) *ParticipantState {
	if c.ParticipantStates == nil {
		c.ParticipantStates = make(map[string]*ParticipantState)
	}
	st, ok := c.ParticipantStates[userID]
	if !ok {
		st = &ParticipantState{}
		c.ParticipantStates[userID] = st
	}
	return st
}

// Validate checks the structural invariants of a conversation. It runs
// after every mutation, before the document is written.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("conversation: empty id")
	}

	seen := make(map[string]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		if p == "" {
			return fmt.Errorf("conversation %s: empty participant id", c.ID)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("conversation %s: duplicate participant %s", c.ID, p)
		}
		seen[p] = struct{}{}
		if _, ok := c.ParticipantStates[p]; !ok {
			return fmt.Errorf("conversation %s: participant %s has no state", c.ID, p)
		}
	}
	if len(c.ParticipantStates) != len(c.Participants) {
		for id := range c.ParticipantStates {
			if _, ok := seen[id]; !ok {
				return fmt.Errorf("conversation %s: state for non-participant %s", c.ID, id)
			}
		}
	}

	pending := make(map[string]struct{}, len(c.PendingInvites))
	for _, p := range c.PendingInvites {
		if _, dup := pending[p]; dup {
			return fmt.Errorf("conversation %s: duplicate invite %s", c.ID, p)
		}
		if _, ok := seen[p]; ok {
			return fmt.Errorf("conversation %s: %s is both participant and invitee", c.ID, p)
		}
		pending[p] = struct{}{}
	}

	if c.IsGroup {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("conversation %s: group without name", c.ID)
		}
		if c.Creator == "" {
			return fmt.Errorf("conversation %s: group without creator", c.ID)
		}
		return nil
	}

	if len(c.Participants) != 2 {
		return fmt.Errorf("conversation %s: direct conversation needs two participants", c.ID)
	}
	if len(c.PendingInvites) > 0 {
		return fmt.Errorf("conversation %s: direct conversation cannot hold invites", c.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.PendingInvites = append([]string{}, c.PendingInvites...)
	cp.ParticipantStates = make(map[string]*ParticipantState, len(c.ParticipantStates))
	for id, st := range c.ParticipantStates {
		s := *st
		cp.ParticipantStates[id] = &s
	}
	if c.LastMessageAt != nil {
		t := *c.LastMessageAt
		cp.LastMessageAt = &t
	}
	return &cp
}

// SortByActivity orders conversations most recent first.
func SortByActivity(list []*Conversation) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ActivityAt().After(list[j].ActivityAt())
	})
}

func ValidGroupName(name string) bool {
	name = strings.TrimSpace(name)
	return name != "" && utf8.RuneCountInString(name) <= MaxGroupNameLength
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
