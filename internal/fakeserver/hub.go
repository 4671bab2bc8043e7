package fakeserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleksandrVishniakov/versta-2024/pkg/log"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// wsClient is one socket attached to a conversation.
type wsClient struct {
	ID           string
	ChatterID    int
	Conversation string
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan []byte
}

func newWSClient(id string, chatterID int, conversation string, hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		ID:           id,
		ChatterID:    chatterID,
		Conversation: conversation,
		Hub:          hub,
		Conn:         conn,
		Send:         make(chan []byte, 256),
	}
}

func (c *wsClient) ReadPump(handler func(*wsClient, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Debug().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *wsClient) WritePump() {
	ticker := time.NewTicker(pingInterval)
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

// Hub fans chat frames out to every socket of a conversation.
type Hub struct {
	clients       map[string]*wsClient
	conversations map[string]map[string]*wsClient // conversation -> clientID -> client
	register      chan *wsClient
	unregister    chan *wsClient
	broadcast     chan *conversationMessage
	done          chan struct{}
	mu            sync.RWMutex
}

type conversationMessage struct {
	Conversation string
	Message      []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:       make(map[string]*wsClient),
		conversations: make(map[string]map[string]*wsClient),
		register:      make(chan *wsClient),
		unregister:    make(chan *wsClient),
		broadcast:     make(chan *conversationMessage, 256),
		done:          make(chan struct{}),
	}
}

// conversationKey is the same for both directions of a pair.
func conversationKey(a, b int) string {
	return fmt.Sprintf("%d:%d", min(a, b), max(a, b))
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			if _, ok := h.conversations[client.Conversation]; !ok {
				h.conversations[client.Conversation] = make(map[string]*wsClient)
			}
			h.conversations[client.Conversation][client.ID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.conversations[msg.Conversation] {
				select {
				case client.Send <- msg.Message:
				default:
					go h.Unregister(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(client *wsClient) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	if cs, ok := h.conversations[client.Conversation]; ok {
		delete(cs, client.ID)
		if len(cs) == 0 {
			delete(h.conversations, client.Conversation)
		}
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, client := range h.clients {
		h.remove(client)
	}
}

func (h *Hub) Register(client *wsClient) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Conn.Close()
	}
}

func (h *Hub) Unregister(client *wsClient) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(conversation string, data []byte) {
	select {
	case h.broadcast <- &conversationMessage{Conversation: conversation, Message: data}:
	case <-h.done:
	}
}

// Count returns the number of sockets attached to the conversation of a and b.
func (h *Hub) Count(a, b int) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conversations[conversationKey(a, b)])
}

// DropAll closes every socket without a close handshake.
func (h *Hub) DropAll() {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for _, client := range h.clients {
		conns = append(conns, client.Conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		conn.Close()
	}
}
