package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleksandrVishniakov/versta-2024/internal/domain"
)

// channel is one logical conversation socket. The underlying connection is
// replaced on reconnect; the channel itself lives until closed.
type channel struct {
	counterpart int
	onMessage   func(domain.Message)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  bool
	writeMu sync.Mutex
}

func newChannel(conn *websocket.Conn, counterpart int, onMessage func(domain.Message)) *channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &channel{
		counterpart: counterpart,
		onMessage:   onMessage,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		conn:        conn,
	}
}

func (ch *channel) current() *websocket.Conn {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn
}

func (ch *channel) stopped() bool {
	return ch.ctx.Err() != nil
}

// swap installs a fresh connection. It refuses, and closes conn, when the
// channel was closed meanwhile.
func (ch *channel) swap(conn *websocket.Conn) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.closed {
		conn.Close()
		return false
	}
	ch.conn = conn
	return true
}

func (ch *channel) write(text string, wait time.Duration) error {
	conn := ch.current()

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(wait))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// close says goodbye to the server and tears the connection down, which
// unblocks the reader.
func (ch *channel) close(wait time.Duration) {
	ch.cancel()

	ch.mu.Lock()
	ch.closed = true
	conn := ch.conn
	ch.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wait))
	conn.Close()
}
