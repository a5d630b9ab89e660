package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
)

// fakeGateway acks every send and read, rejecting reads of "missing", and
// broadcasts each sent message back as a message event.
func fakeGateway(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != "good" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		write := func(env event.Envelope) {
			data, _ := json.Marshal(env)
			_ = conn.Write(ctx, websocket.MessageText, data)
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var req event.Envelope
			if json.Unmarshal(data, &req) != nil {
				continue
			}
			switch req.Type {
			case event.TypePing:
				write(req.Reply(event.TypePong, nil))
			case event.TypeSend:
				var p event.SendPayload
				_ = req.Decode(&p)
				msg := &entity.Message{ID: "m1", SenderID: "alice", ConversationID: p.ConversationID, Content: p.Content}
				write(req.Reply(event.TypeAck, event.AckPayload{OK: true, ClientID: p.ClientID, Message: msg}))
				write(event.New(event.TypeMessage, event.MessagePayload{ConversationID: p.ConversationID, Message: msg, ClientID: p.ClientID}))
			case event.TypeRead:
				var p event.ReadPayload
				_ = req.Decode(&p)
				ack := event.AckPayload{OK: true}
				if p.ConversationID == "missing" {
					ack = event.AckPayload{Error: &event.ErrorPayload{Code: "NOT_FOUND", Message: "Conversation not found"}}
				}
				write(req.Reply(event.TypeAck, ack))
			}
		}
	}))
}

func TestClientRequestsAndEvents(t *testing.T) {
	srv := fakeGateway(t)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, srv.URL, "good", nil)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Ping(ctx))

	tl := NewTimeline("c1")
	clientID := tl.AddPlaceholder("alice", Draft{Content: "hello"})
	msg, err := c.Send(ctx, event.SendPayload{ConversationID: "c1", Content: "hello", ClientID: clientID})
	require.NoError(t, err)
	assert.Equal(t, Matched, tl.Confirm(*msg, clientID))

	select {
	case env := <-c.Events():
		require.Equal(t, event.TypeMessage, env.Type)
		var p event.MessagePayload
		require.NoError(t, env.Decode(&p))
		assert.Equal(t, clientID, p.ClientID)
		assert.Equal(t, Duplicate, tl.Confirm(*p.Message, p.ClientID))
	case <-ctx.Done():
		t.Fatal("no broadcast received")
	}

	require.NoError(t, c.Read(ctx, "c1", ""))

	err = c.Read(ctx, "missing", "")
	var ackErr *AckError
	require.ErrorAs(t, err, &ackErr)
	assert.Equal(t, "NOT_FOUND", ackErr.Code)
}

func TestDialRejectsBadToken(t *testing.T) {
	srv := fakeGateway(t)
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, "bad", nil)
	assert.Error(t, err)
}
