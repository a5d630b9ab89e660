package chatclient

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coursehub/internal/domain/entity"
)

const localPrefix = "local-"

// Outcome says how an echoed message was merged into a timeline.
type Outcome int

const (
	// Matched replaced the placeholder carrying the same client id.
	Matched Outcome = iota
	// Duplicate means the message was already on the timeline.
	Duplicate
	// MatchedHeuristic replaced a placeholder by sender, content and
	// attachment count because the echo carried no usable client id.
	MatchedHeuristic
	// Appended added a message nobody on this device was waiting for.
	Appended
)

// DraftFile is a file the user attached before sending.
type DraftFile struct {
	Name string
	Size int64
	Path string
}

// Draft is what the user typed. It is handed back when a send fails.
type Draft struct {
	Content string
	Files   []DraftFile
}

// Entry is one line of a conversation as shown to the user.
type Entry struct {
	Message  entity.Message
	ClientID string
	Pending  bool

	draft Draft
}

// Timeline is the ordered display list of one conversation. It shows sends
// immediately as pending placeholders and swaps in the server's copy when
// the echo arrives.
type Timeline struct {
	mu             sync.Mutex
	conversationID string
	entries        []*Entry
	now            func() time.Time
}

func NewTimeline(conversationID string) *Timeline {
	return &Timeline{
		conversationID: conversationID,
		now:            time.Now,
	}
}

// AddPlaceholder renders draft as a pending message and returns the client
// id to send along with it.
func (t *Timeline) AddPlaceholder(senderID string, draft Draft) string {
	clientID := uuid.New().String()

	atts := make([]entity.Attachment, 0, len(draft.Files))
	for _, f := range draft.Files {
		atts = append(atts, entity.Attachment{OriginalName: f.Name, Size: f.Size})
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, &Entry{
		Message: entity.Message{
			ID:             localPrefix + clientID,
			SenderID:       senderID,
			ConversationID: t.conversationID,
			Content:        draft.Content,
			Attachments:    atts,
			CreatedAt:      t.now(),
		},
		ClientID: clientID,
		Pending:  true,
		draft:    draft,
	})
	return clientID
}

// Confirm merges a server message, from an ack or a broadcast, whichever
// comes first. The second copy of the same message is a Duplicate.
func (t *Timeline) Confirm(msg entity.Message, clientID string) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	if clientID != "" {
		if e := t.pendingByClientID(clientID); e != nil {
			e.confirm(msg)
			return Matched
		}
	}
	for _, e := range t.entries {
		if e.Message.ID == msg.ID {
			return Duplicate
		}
	}
	if clientID == "" {
		if e := t.oldestLookalike(msg); e != nil {
			e.confirm(msg)
			return MatchedHeuristic
		}
	}

	cp := msg
	t.entries = append(t.entries, &Entry{Message: cp})
	return Appended
}

// Fail drops the placeholder of clientID and returns its draft for retry.
func (t *Timeline) Fail(clientID string) (Draft, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, e := range t.entries {
		if e.Pending && e.ClientID == clientID {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return e.draft, true
		}
	}
	return Draft{}, false
}

// Load merges a page of server history, oldest first. Messages already on
// the timeline are skipped; pending placeholders stay at the end.
func (t *Timeline) Load(history []entity.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	known := make(map[string]struct{}, len(t.entries))
	var confirmed, pending []*Entry
	for _, e := range t.entries {
		known[e.Message.ID] = struct{}{}
		if e.Pending {
			pending = append(pending, e)
		} else {
			confirmed = append(confirmed, e)
		}
	}
	for _, m := range history {
		if _, ok := known[m.ID]; ok {
			continue
		}
		known[m.ID] = struct{}{}
		confirmed = append(confirmed, &Entry{Message: m})
	}
	sortByCreated(confirmed)
	t.entries = append(confirmed, pending...)
}

// Entries returns a snapshot of the timeline.
func (t *Timeline) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, *e)
	}
	return out
}

// PendingCount is the number of sends still waiting for the server.
func (t *Timeline) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, e := range t.entries {
		if e.Pending {
			n++
		}
	}
	return n
}

func (t *Timeline) pendingByClientID(clientID string) *Entry {
	for _, e := range t.entries {
		if e.Pending && e.ClientID == clientID {
			return e
		}
	}
	return nil
}

// oldestLookalike is the fallback for echoes without a client id. Two
// identical sends in flight are indistinguishable, so the oldest wins.
func (t *Timeline) oldestLookalike(msg entity.Message) *Entry {
	content := strings.TrimSpace(msg.Content)
	for _, e := range t.entries {
		if !e.Pending || e.Message.SenderID != msg.SenderID {
			continue
		}
		if strings.TrimSpace(e.Message.Content) == content && len(e.Message.Attachments) == len(msg.Attachments) {
			return e
		}
	}
	return nil
}

func (e *Entry) confirm(msg entity.Message) {
	e.Message = msg
	e.Pending = false
	e.draft = Draft{}
}

func sortByCreated(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Message.CreatedAt.Before(entries[j].Message.CreatedAt)
	})
}
