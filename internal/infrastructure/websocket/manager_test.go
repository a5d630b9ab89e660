package websocket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
	"coursehub/internal/infrastructure/presence"
	"coursehub/internal/usecase"
	"coursehub/pkg/errors"
)

type fakeChat struct {
	mu     sync.Mutex
	sends  []usecase.SendMessageInput
	typing []usecase.TypingInput
	reads  []string
	delay  time.Duration
}

func (f *fakeChat) SendMessage(_ context.Context, senderID string, input usecase.SendMessageInput) (*entity.Message, error) {
	if input.Content == "" {
		return nil, errors.BadRequest("Message must have content or attachments", nil)
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, input)
	return &entity.Message{
		ID:             fmt.Sprintf("m%d", len(f.sends)),
		SenderID:       senderID,
		ConversationID: input.ConversationID,
		Content:        input.Content,
	}, nil
}

func (f *fakeChat) HandleTyping(_ context.Context, _ string, input usecase.TypingInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, input)
	return nil
}

func (f *fakeChat) MarkRead(_ context.Context, _ string, conversationID, _ string) (*entity.Conversation, error) {
	if conversationID == "missing" {
		return nil, errors.NotFound("Conversation", nil)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, conversationID)
	return &entity.Conversation{ID: conversationID}, nil
}

func (f *fakeChat) contents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sends))
	for _, s := range f.sends {
		out = append(out, s.Content)
	}
	return out
}

type hubFixture struct {
	manager *Manager
	chat    *fakeChat
	server  *httptest.Server
}

func newHub(t *testing.T, contacts map[string][]string) *hubFixture {
	return newHubWithResolver(t, func(_ context.Context, userID string) ([]string, error) {
		return contacts[userID], nil
	})
}

func newHubWithResolver(t *testing.T, resolve ContactsResolver) *hubFixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	chat := &fakeChat{}
	m := NewManager(chat, presence.NewMemoryRegistry())
	m.SetContactsResolver(resolve)
	m.Start(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		m.Attach(conn, r.URL.Query().Get("uid"))
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &hubFixture{manager: m, chat: chat, server: srv}
}

func (h *hubFixture) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/?uid=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()
	var env event.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func expectPresence(t *testing.T, conn *websocket.Conn, userID, status string) {
	t.Helper()
	env := readEvent(t, conn)
	require.Equal(t, event.TypePresence, env.Type)
	var p event.PresencePayload
	require.NoError(t, env.Decode(&p))
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, status, p.Status)
}

func TestPresenceTransitions(t *testing.T) {
	h := newHub(t, map[string][]string{"alice": {"bob"}, "bob": {"alice"}})

	bob := h.dial(t, "bob")
	expectPresence(t, bob, "bob", event.StatusOnline)

	alice1 := h.dial(t, "alice")
	expectPresence(t, alice1, "alice", event.StatusOnline)
	expectPresence(t, bob, "alice", event.StatusOnline)

	h.dial(t, "alice")
	require.Eventually(t, func() bool { return h.manager.ConnectionCount() == 3 }, time.Second, 5*time.Millisecond)

	alice1.Close()
	require.Eventually(t, func() bool { return h.manager.ConnectionCount() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// neither the second connect nor the first disconnect changed presence
	h.manager.SendToUsers([]string{"bob"}, event.New(event.TypePong, nil))
	assert.Equal(t, event.TypePong, readEvent(t, bob).Type)
	assert.True(t, h.manager.IsConnected("alice"))
}

func TestLastDisconnectAnnouncesOffline(t *testing.T) {
	h := newHub(t, map[string][]string{"alice": {"bob"}, "bob": {"alice"}})

	bob := h.dial(t, "bob")
	expectPresence(t, bob, "bob", event.StatusOnline)
	alice := h.dial(t, "alice")
	expectPresence(t, bob, "alice", event.StatusOnline)

	alice.Close()
	expectPresence(t, bob, "alice", event.StatusOffline)
	assert.False(t, h.manager.IsConnected("alice"))
}

func TestQuickReconnectEndsOffline(t *testing.T) {
	var mu sync.Mutex
	lookups := 0
	h := newHubWithResolver(t, func(_ context.Context, userID string) ([]string, error) {
		if userID != "alice" {
			return nil, nil
		}
		mu.Lock()
		lookups++
		n := lookups
		mu.Unlock()
		// the online lookup is slow, the offline one is instant
		if n == 1 {
			time.Sleep(200 * time.Millisecond)
		}
		return []string{"bob"}, nil
	})

	bob := h.dial(t, "bob")
	expectPresence(t, bob, "bob", event.StatusOnline)

	alice := h.dial(t, "alice")
	require.Eventually(t, func() bool { return h.manager.IsConnected("alice") }, time.Second, 5*time.Millisecond)
	alice.Close()
	require.Eventually(t, func() bool { return !h.manager.IsConnected("alice") }, time.Second, 5*time.Millisecond)

	expectPresence(t, bob, "alice", event.StatusOnline)
	expectPresence(t, bob, "alice", event.StatusOffline)
}

func TestSendToUsersReachesEveryDevice(t *testing.T) {
	h := newHub(t, nil)

	phone := h.dial(t, "carol")
	expectPresence(t, phone, "carol", event.StatusOnline)
	laptop := h.dial(t, "carol")
	require.Eventually(t, func() bool { return h.manager.ConnectionCount() == 2 }, time.Second, 5*time.Millisecond)

	h.manager.SendToUsers([]string{"carol", "carol", "nobody"}, event.New(event.TypeUnread, event.UnreadPayload{
		ConversationID: "c1",
		Unread:         map[string]int{"carol": 3},
	}))

	for _, conn := range []*websocket.Conn{phone, laptop} {
		env := readEvent(t, conn)
		require.Equal(t, event.TypeUnread, env.Type)
		var p event.UnreadPayload
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, 3, p.Unread["carol"])
	}
}

func TestPingPong(t *testing.T) {
	h := newHub(t, nil)
	conn := h.dial(t, "dave")
	expectPresence(t, conn, "dave", event.StatusOnline)

	require.NoError(t, conn.WriteJSON(event.Envelope{Type: event.TypePing, RequestID: "r1"}))
	env := readEvent(t, conn)
	assert.Equal(t, event.TypePong, env.Type)
	assert.Equal(t, "r1", env.RequestID)
}

func TestSendIsAckedToInitiator(t *testing.T) {
	h := newHub(t, nil)
	conn := h.dial(t, "alice")
	expectPresence(t, conn, "alice", event.StatusOnline)

	req := event.New(event.TypeSend, event.SendPayload{ConversationID: "c1", Content: "hi", ClientID: "tmp-9"})
	req.RequestID = "r2"
	require.NoError(t, conn.WriteJSON(req))

	env := readEvent(t, conn)
	require.Equal(t, event.TypeAck, env.Type)
	assert.Equal(t, "r2", env.RequestID)
	var ack event.AckPayload
	require.NoError(t, env.Decode(&ack))
	assert.True(t, ack.OK)
	assert.Equal(t, "tmp-9", ack.ClientID)
	require.NotNil(t, ack.Message)
	assert.Equal(t, "hi", ack.Message.Content)

	bad := event.New(event.TypeSend, event.SendPayload{ConversationID: "c1", ClientID: "tmp-10"})
	bad.RequestID = "r3"
	require.NoError(t, conn.WriteJSON(bad))

	env = readEvent(t, conn)
	require.Equal(t, event.TypeAck, env.Type)
	require.NoError(t, env.Decode(&ack))
	assert.False(t, ack.OK)
	assert.Equal(t, "tmp-10", ack.ClientID)
	require.NotNil(t, ack.Error)
	assert.Equal(t, errors.CodeBadRequest, ack.Error.Code)
}

func TestReadIsAcked(t *testing.T) {
	h := newHub(t, nil)
	conn := h.dial(t, "alice")
	expectPresence(t, conn, "alice", event.StatusOnline)

	req := event.New(event.TypeRead, event.ReadPayload{ConversationID: "missing"})
	req.RequestID = "r4"
	require.NoError(t, conn.WriteJSON(req))

	env := readEvent(t, conn)
	require.Equal(t, event.TypeAck, env.Type)
	var ack event.AckPayload
	require.NoError(t, env.Decode(&ack))
	assert.False(t, ack.OK)
	assert.Equal(t, errors.CodeNotFound, ack.Error.Code)
}

func TestMalformedFrames(t *testing.T) {
	h := newHub(t, nil)
	conn := h.dial(t, "alice")
	expectPresence(t, conn, "alice", event.StatusOnline)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	env := readEvent(t, conn)
	assert.Equal(t, event.TypeError, env.Type)

	require.NoError(t, conn.WriteJSON(event.Envelope{Type: "dance", RequestID: "r5"}))
	env = readEvent(t, conn)
	assert.Equal(t, event.TypeError, env.Type)
	assert.Equal(t, "r5", env.RequestID)
}

func TestSendsInOneConversationKeepOrder(t *testing.T) {
	h := newHub(t, nil)
	h.chat.delay = 2 * time.Millisecond
	conn := h.dial(t, "alice")
	expectPresence(t, conn, "alice", event.StatusOnline)

	const n = 20
	var want []string
	for i := 0; i < n; i++ {
		content := fmt.Sprintf("msg-%02d", i)
		want = append(want, content)
		require.NoError(t, conn.WriteJSON(event.New(event.TypeSend, event.SendPayload{ConversationID: "c1", Content: content})))
		// typing in another conversation shares no lane with the sends
		require.NoError(t, conn.WriteJSON(event.New(event.TypeTyping, event.TypingPayload{ConversationID: "c2", Typing: true})))
	}

	for i := 0; i < n; i++ {
		assert.Equal(t, event.TypeAck, readEvent(t, conn).Type)
	}
	assert.Equal(t, want, h.chat.contents())
}
