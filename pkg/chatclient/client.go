// Package chatclient is a Go client for the chat socket and REST API.
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"nhooyr.io/websocket"

	"coursehub/internal/domain/entity"
	"coursehub/internal/domain/event"
)

const eventBuffer = 64

// AckError is a request the server rejected.
type AckError struct {
	Code    string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Client is one socket connection. Replies are matched to requests by
// requestId; everything else is delivered on Events.
type Client struct {
	conn    *websocket.Conn
	ctx     context.Context
	cancel  context.CancelFunc
	counter atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan event.Envelope
	err     error

	events chan event.Envelope
	done   chan struct{}
}

// Dial connects to baseURL (http or https) with a bearer token.
func Dial(ctx context.Context, baseURL, token string, httpClient *http.Client) (*Client, error) {
	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL = strings.TrimRight(wsURL, "/") + "/ws?token=" + url.QueryEscape(token)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPClient: httpClient})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		ctx:     connCtx,
		cancel:  cancel,
		pending: make(map[string]chan event.Envelope),
		events:  make(chan event.Envelope, eventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers server pushes. It is closed when the connection ends.
func (c *Client) Events() <-chan event.Envelope {
	return c.events
}

// Done is closed when the connection ends; Err then reports why.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) Close() error {
	err := c.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	c.cancel()
	return err
}

// Send posts a message and waits for its ack. A missing ClientID is filled
// in so the echo can be matched to the caller's placeholder.
func (c *Client) Send(ctx context.Context, p event.SendPayload) (*entity.Message, error) {
	if p.ClientID == "" {
		p.ClientID = uuid.New().String()
	}
	reply, err := c.request(ctx, event.TypeSend, p)
	if err != nil {
		return nil, err
	}
	ack, err := decodeAck(reply)
	if err != nil {
		return nil, err
	}
	return ack.Message, nil
}

// Read marks the conversation read up to messageID, or entirely when empty.
func (c *Client) Read(ctx context.Context, conversationID, messageID string) error {
	reply, err := c.request(ctx, event.TypeRead, event.ReadPayload{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	if err != nil {
		return err
	}
	_, err = decodeAck(reply)
	return err
}

// Typing is fire and forget; the server never answers it.
func (c *Client) Typing(ctx context.Context, target event.Target, typing bool) error {
	return c.write(ctx, event.New(event.TypeTyping, event.TypingPayload{
		ConversationID: target.ConversationID,
		To:             target.To,
		Typing:         typing,
	}))
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, event.TypePing, nil)
	return err
}

func (c *Client) request(ctx context.Context, typ string, payload interface{}) (event.Envelope, error) {
	env := event.New(typ, payload)
	env.RequestID = fmt.Sprintf("req-%d", c.counter.Add(1))

	ch := make(chan event.Envelope, 1)
	c.mu.Lock()
	c.pending[env.RequestID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, env); err != nil {
		return event.Envelope{}, err
	}

	select {
	case reply := <-ch:
		if reply.Type == event.TypeError {
			var p event.ErrorPayload
			if err := reply.Decode(&p); err != nil {
				return reply, err
			}
			return reply, &AckError{Code: p.Code, Message: p.Message}
		}
		return reply, nil
	case <-ctx.Done():
		return event.Envelope{}, ctx.Err()
	case <-c.done:
		if err := c.Err(); err != nil {
			return event.Envelope{}, err
		}
		return event.Envelope{}, fmt.Errorf("connection closed")
	}
}

func (c *Client) write(ctx context.Context, env event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}

		var env event.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}

		if env.RequestID != "" {
			c.mu.Lock()
			ch, ok := c.pending[env.RequestID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- env:
				default:
				}
				continue
			}
		}

		select {
		case c.events <- env:
		case <-c.ctx.Done():
			return
		}
	}
}

func decodeAck(reply event.Envelope) (*event.AckPayload, error) {
	var ack event.AckPayload
	if err := reply.Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode ack: %w", err)
	}
	if !ack.OK {
		if ack.Error != nil {
			return &ack, &AckError{Code: ack.Error.Code, Message: ack.Error.Message}
		}
		return &ack, &AckError{Code: "UNKNOWN", Message: "request rejected"}
	}
	return &ack, nil
}
