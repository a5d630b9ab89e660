package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"coursehub/internal/domain/event"
	"coursehub/internal/domain/service"
	"coursehub/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
	announceBuffer = 1024
)

// ContactsResolver lists the users who should see a user's presence changes.
type ContactsResolver func(ctx context.Context, userID string) ([]string, error)

type announcement struct {
	userID string
	status string
}

// Manager tracks every live connection, grouped by user.
type Manager struct {
	clients    map[string]map[*Client]struct{}
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex

	chat     ChatService
	presence service.PresenceRegistry
	contacts ContactsResolver

	// presence transitions in the order the loop saw them
	announcements chan announcement

	stopped chan struct{}
}

func NewManager(chat ChatService, presence service.PresenceRegistry) *Manager {
	return &Manager{
		clients:    make(map[string]map[*Client]struct{}),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		chat:       chat,
		presence:   presence,

		announcements: make(chan announcement, announceBuffer),
		stopped:       make(chan struct{}),
	}
}

// SetChatService wires the chat use-case after construction, since the
// use-case publishes through this manager.
func (m *Manager) SetChatService(chat ChatService) {
	m.chat = chat
}

func (m *Manager) SetContactsResolver(fn ContactsResolver) {
	m.contacts = fn
}

// Start runs the registration loop until ctx is cancelled. Presence is only
// mutated from this loop, and its announcements go out one at a time in the
// same order.
func (m *Manager) Start(ctx context.Context) {
	go m.runAnnouncer(ctx)
	go func() {
		defer close(m.stopped)
		for {
			select {
			case client := <-m.Register:
				m.register(ctx, client)

			case client := <-m.Unregister:
				m.unregister(ctx, client)

			case <-ctx.Done():
				m.shutdown()
				return
			}
		}
	}()
}

func (m *Manager) register(ctx context.Context, c *Client) {
	m.mutex.Lock()
	set, ok := m.clients[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		m.clients[c.UserID] = set
	}
	set[c] = struct{}{}
	local := len(set)
	m.mutex.Unlock()

	first := local == 1
	if m.presence != nil {
		var err error
		if first, err = m.presence.Add(ctx, c.UserID, c.ID); err != nil {
			logger.Warn("Presence add for %s failed: %v", c.UserID, err)
			first = local == 1
		}
	}
	logger.Debug("Client registered: user %s conn %s (%d local)", c.UserID, c.ID, local)

	if first {
		m.queueAnnouncement(ctx, c.UserID, event.StatusOnline)
	}
}

func (m *Manager) unregister(ctx context.Context, c *Client) {
	m.mutex.Lock()
	set, ok := m.clients[c.UserID]
	if !ok {
		m.mutex.Unlock()
		return
	}
	if _, ok := set[c]; !ok {
		m.mutex.Unlock()
		return
	}
	delete(set, c)
	close(c.Send)
	local := len(set)
	if local == 0 {
		delete(m.clients, c.UserID)
	}
	m.mutex.Unlock()

	last := local == 0
	if m.presence != nil {
		var err error
		if last, err = m.presence.Remove(ctx, c.UserID, c.ID); err != nil {
			logger.Warn("Presence remove for %s failed: %v", c.UserID, err)
			last = local == 0
		}
	}
	logger.Debug("Client unregistered: user %s conn %s (%d local)", c.UserID, c.ID, local)

	if last {
		m.queueAnnouncement(ctx, c.UserID, event.StatusOffline)
	}
}

func (m *Manager) shutdown() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for userID, set := range m.clients {
		for c := range set {
			close(c.Send)
			if m.presence != nil {
				if _, err := m.presence.Remove(ctx, userID, c.ID); err != nil {
					logger.Warn("Presence remove for %s failed: %v", userID, err)
				}
			}
		}
	}
	m.clients = make(map[string]map[*Client]struct{})
	logger.Info("WebSocket manager stopped")
}

func (m *Manager) queueAnnouncement(ctx context.Context, userID, status string) {
	select {
	case m.announcements <- announcement{userID: userID, status: status}:
	case <-ctx.Done():
	}
}

func (m *Manager) runAnnouncer(ctx context.Context) {
	for {
		select {
		case a := <-m.announcements:
			m.announce(a.userID, a.status)
		case <-ctx.Done():
			return
		}
	}
}

// announce tells the user's own devices and every contact about a presence
// transition.
func (m *Manager) announce(userID, status string) {
	targets := []string{userID}
	if m.contacts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		contacts, err := m.contacts(ctx, userID)
		cancel()
		if err != nil {
			logger.Warn("Presence %s for %s: contact lookup failed: %v", status, userID, err)
		}
		targets = append(targets, contacts...)
	}
	m.SendToUsers(targets, event.New(event.TypePresence, event.PresencePayload{
		UserID: userID,
		Status: status,
	}))
}

// SendToUsers enqueues evt on every connection of every listed user.
func (m *Manager) SendToUsers(userIDs []string, evt event.Envelope) {
	data, err := json.Marshal(evt)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s event: %v", evt.Type, err)
		return
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()
	seen := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		for c := range m.clients[id] {
			c.enqueue(data)
		}
	}
}

// IsConnected reports whether this instance holds a connection for userID.
func (m *Manager) IsConnected(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.clients[userID]) > 0
}

// ConnectionCount is the number of live connections on this instance.
func (m *Manager) ConnectionCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	n := 0
	for _, set := range m.clients {
		n += len(set)
	}
	return n
}

// Attach registers an upgraded connection for userID and starts its pumps.
func (m *Manager) Attach(conn *websocket.Conn, userID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ID:      uuid.New().String(),
		UserID:  userID,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		manager: m,
		lanes:   make(map[string]chan event.Envelope),
		ctx:     ctx,
		cancel:  cancel,
	}

	select {
	case m.Register <- c:
	case <-m.stopped:
		cancel()
		conn.Close()
		return c
	}

	go c.WritePump()
	go c.ReadPump()
	return c
}

// Client is one websocket connection of a user.
type Client struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	manager *Manager
	lanesMu sync.Mutex
	lanes   map[string]chan event.Envelope
	ctx     context.Context
	cancel  context.CancelFunc
}

// enqueue never blocks. A connection that cannot keep up is dropped; the
// manager's read lock is held by the caller, so Send is still open.
func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		logger.Warn("WebSocket: send queue full for user %s conn %s, closing", c.UserID, c.ID)
		c.Conn.Close()
	}
}

func (c *Client) reply(env event.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		logger.Error("WebSocket: failed to encode %s reply: %v", env.Type, err)
		return
	}
	c.manager.mutex.RLock()
	defer c.manager.mutex.RUnlock()
	if _, ok := c.manager.clients[c.UserID][c]; ok {
		c.enqueue(data)
	}
}

// ReadPump reads frames until the connection fails, then unregisters.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		select {
		case c.manager.Unregister <- c:
		case <-c.manager.stopped:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error for user %s: %v", c.UserID, err)
			}
			return
		}
		c.manager.HandleClientMessage(c, message)
	}
}

// WritePump drains Send and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("WebSocket: write error for user %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
