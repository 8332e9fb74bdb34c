package pushserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol/socketio"
	"github.com/rs/xid"
)

const maxPayload = 1_000_000

func deadline(d time.Duration) time.Time { return time.Now().Add(d) }

// handleSocketIO serves Engine.IO v4 over WebSocket with one Socket.IO
// namespace per connection. The token arrives in the CONNECT auth payload.
func (s *Server) handleSocketIO(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("EIO") != "4" || q.Get("transport") != "websocket" {
		http.Error(w, "only EIO=4 over websocket is supported", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}

	c := newClient(xid.New().String(), DialectSocketIO, conn, s.config.WriteTimeout)
	if !s.openNamespace(c) {
		_ = conn.Close()
		return
	}
	if err = s.register(c); err != nil {
		s.logger.Warn("Refusing client", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		_ = c.writeText(socketio.Packet{
			Type:      socketio.PacketConnectError,
			Namespace: c.namespace,
			Data:      errorData(err.Error()),
		}.Encode())
		_ = conn.Close()
		return
	}
	defer s.unregister(c)

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(c, done)

	window := s.config.PingInterval + s.config.PingTimeout
	for {
		_ = conn.SetReadDeadline(deadline(window))
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Socket.IO client read failed", log.String("client_id", c.id), log.Error(err))
			}
			return
		}
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case socketio.EnginePing:
			_ = c.writeText(string(socketio.EnginePong))
		case socketio.EnginePong:
			c.touch()
		case socketio.EngineClose:
			return
		case socketio.EngineMessage:
			if leave := s.handlePacket(c, frame[1:]); leave {
				return
			}
		}
	}
}

// openNamespace runs the Engine.IO OPEN and the namespace CONNECT. It
// reports whether the client was admitted.
func (s *Server) openNamespace(c *client) bool {
	hs, _ := json.Marshal(socketio.Handshake{
		SID:          c.id,
		Upgrades:     []string{},
		PingInterval: int(s.config.PingInterval / time.Millisecond),
		PingTimeout:  int(s.config.PingTimeout / time.Millisecond),
		MaxPayload:   maxPayload,
	})
	if err := c.writeText(string(socketio.EngineOpen) + string(hs)); err != nil {
		return false
	}

	_ = c.conn.SetReadDeadline(deadline(s.config.PingTimeout))
	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			s.logger.Debug("Socket.IO client left before connecting", log.String("client_id", c.id), log.Error(err))
			return false
		}
		if len(frame) < 2 || frame[0] != socketio.EngineMessage {
			continue
		}
		p, err := socketio.DecodePacket(string(frame[1:]))
		if err != nil || p.Type != socketio.PacketConnect {
			continue
		}

		c.namespace = p.Namespace
		var auth struct {
			Token string `json:"token"`
		}
		if len(p.Data) > 0 {
			_ = json.Unmarshal(p.Data, &auth)
		}
		if !s.authorized(auth.Token) {
			s.logger.Warn("Rejected Socket.IO client", log.String("client_id", c.id))
			_ = c.writeText(socketio.Packet{
				Type:      socketio.PacketConnectError,
				Namespace: p.Namespace,
				Data:      errorData("authentication failed: invalid token"),
			}.Encode())
			return false
		}

		sid, _ := json.Marshal(map[string]string{"sid": c.id})
		return c.writeText(socketio.Packet{Type: socketio.PacketConnect, Namespace: p.Namespace, Data: sid}.Encode()) == nil
	}
}

// handlePacket applies one Socket.IO packet and reports whether the client
// left the namespace.
func (s *Server) handlePacket(c *client, data []byte) bool {
	p, err := socketio.DecodePacket(string(data))
	if err != nil {
		s.logger.Warn("Dropping socket.io packet", log.String("client_id", c.id), log.Error(err))
		return false
	}
	if p.Namespace != c.namespace {
		return false
	}

	switch p.Type {
	case socketio.PacketDisconnect:
		return true
	case socketio.PacketEvent:
		name, arg, err := p.Event()
		if err != nil {
			s.logger.Warn("Dropping socket.io event", log.String("client_id", c.id), log.Error(err))
			return false
		}
		if name != socketio.EventMessage {
			named, _ := json.Marshal(map[string]json.RawMessage{"event": mustString(name), "payload": orNull(arg)})
			s.handleFrame(c, named)
			return false
		}
		s.handleFrame(c, orNull(arg))
	}
	return false
}

// pingLoop sends Engine.IO pings; the client answers with pongs.
func (s *Server) pingLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(s.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.writeText(string(socketio.EnginePing)); err != nil {
				return
			}
		case <-done:
			return
		case <-s.stopChan:
			return
		}
	}
}

func errorData(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"message": message})
	return data
}

func mustString(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}

func orNull(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("null")
	}
	return data
}
