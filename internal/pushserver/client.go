package pushserver

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol/socketio"
)

// Dialect is the wire protocol a client connected with.
type Dialect string

const (
	DialectRaw      Dialect = "websocket"
	DialectSocketIO Dialect = "socketio"
)

// client is one connected subscriber.
type client struct {
	id          string
	dialect     Dialect
	namespace   string
	conn        *websocket.Conn
	connectedAt time.Time
	lastSeen    atomic.Int64

	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu       sync.Mutex
	channels map[string]struct{}
}

func newClient(id string, dialect Dialect, conn *websocket.Conn, writeTimeout time.Duration) *client {
	c := &client{
		id:           id,
		dialect:      dialect,
		namespace:    socketio.DefaultNamespace,
		conn:         conn,
		connectedAt:  time.Now(),
		writeTimeout: writeTimeout,
		channels:     make(map[string]struct{}),
	}
	c.touch()
	return c
}

func (c *client) touch() { c.lastSeen.Store(time.Now().UnixNano()) }

func (c *client) seenAt() time.Time { return time.Unix(0, c.lastSeen.Load()) }

// idleSince reports whether the client sent nothing after cutoff.
func (c *client) idleSince(cutoff time.Time) bool { return c.seenAt().Before(cutoff) }

func (c *client) subscribe(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; ok {
		return false
	}
	c.channels[channel] = struct{}{}
	return true
}

func (c *client) unsubscribe(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return false
	}
	delete(c.channels, channel)
	return true
}

// wants reports whether a push on channel reaches this client. The wildcard
// subscription receives every channel.
func (c *client) wants(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[protocol.WildcardChannel]; ok {
		return true
	}
	_, ok := c.channels[channel]
	return ok
}

func (c *client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// send writes one JSON frame in the client's dialect.
func (c *client) send(data json.RawMessage) error {
	if c.dialect == DialectSocketIO {
		p, err := socketio.EventPacket(c.namespace, socketio.EventMessage, data)
		if err != nil {
			return err
		}
		return c.writeText(p.Encode())
	}
	return c.writeText(string(data))
}

func (c *client) writeText(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// close ends the connection. A clean close sends a normal closure frame
// first; otherwise the socket is dropped.
func (c *client) close(clean bool) {
	if clean {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"),
			time.Now().Add(c.writeTimeout))
		c.writeMu.Unlock()
	}
	_ = c.conn.Close()
}
