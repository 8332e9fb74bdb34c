package socketio

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/pkg/errors"
)

var _ protocol.Transport = (*Transport)(nil)

const (
	DefaultPath      = "/socket.io/"
	DefaultNamespace = "/"
)

type Options struct {
	Dialer *websocket.Dialer
	Header http.Header
	// HandshakeTimeout bounds the upgrade plus the Engine.IO and namespace
	// handshakes.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	Logger           log.Log
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		o.Dialer = &d
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

// Transport speaks Socket.IO v5 over an Engine.IO v4 WebSocket. The token is
// sent as the namespace CONNECT auth payload.
type Transport struct {
	opts Options

	mu        sync.Mutex
	conn      *websocket.Conn
	cancel    context.CancelFunc
	namespace string
	open      bool
	closed    bool
	ended     bool

	writeMu sync.Mutex
}

func New(opts Options) *Transport {
	return &Transport{opts: opts.withDefaults()}
}

func Factory(opts Options) protocol.Factory {
	return func() protocol.Transport { return New(opts) }
}

func (t *Transport) Kind() protocol.Kind { return protocol.KindSocketIO }

func (t *Transport) Open(target protocol.Target, listener protocol.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.namespace = target.Namespace
	if t.namespace == "" {
		t.namespace = DefaultNamespace
	}
	t.mu.Unlock()

	go t.run(ctx, target, listener)
}

func (t *Transport) run(ctx context.Context, target protocol.Target, listener protocol.Listener) {
	endpoint, err := DialURL(target)
	if err != nil {
		t.fail(listener, err)
		return
	}

	conn, resp, err := t.opts.Dialer.DialContext(ctx, endpoint, t.opts.Header)
	if err != nil {
		if resp != nil {
			err = &protocol.HandshakeError{StatusCode: resp.StatusCode, Err: err}
		}
		t.fail(listener, errors.Wrap(err, "failed to dial socket.io"))
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	// Close may now abort the handshake by closing the socket.
	t.conn = conn
	t.mu.Unlock()

	window, err := t.handshake(conn, target.Token)
	if err != nil {
		_ = conn.Close()
		t.fail(listener, err)
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.open = true
	t.mu.Unlock()

	listener.OnOpen()
	t.readLoop(conn, window, listener)
}

// handshake consumes the Engine.IO OPEN packet and performs the namespace
// CONNECT. It returns the read window derived from the server's ping
// settings.
func (t *Transport) handshake(conn *websocket.Conn, token string) (time.Duration, error) {
	deadline := time.Now().Add(t.opts.HandshakeTimeout)
	_ = conn.SetReadDeadline(deadline)

	_, frame, err := conn.ReadMessage()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read engine.io open packet")
	}
	hs, err := DecodeHandshake(frame)
	if err != nil {
		return 0, err
	}
	window := time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond

	if err = t.write(conn, ConnectPacket(t.namespace, token).Encode()); err != nil {
		return 0, errors.Wrap(err, "failed to send namespace connect")
	}

	for {
		_, frame, err = conn.ReadMessage()
		if err != nil {
			return 0, errors.Wrap(err, "failed to read namespace connect reply")
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case EnginePing:
			if err = t.write(conn, string(EnginePong)); err != nil {
				return 0, errors.Wrap(err, "failed to answer ping")
			}
			continue
		case EngineMessage:
		default:
			continue
		}

		p, err := DecodePacket(string(frame[1:]))
		if err != nil {
			return 0, err
		}
		if p.Namespace != t.namespace {
			continue
		}
		switch p.Type {
		case PacketConnect:
			return window, nil
		case PacketConnectError:
			return 0, &protocol.HandshakeError{Message: p.ConnectErrorMessage()}
		}
	}
}

func (t *Transport) readLoop(conn *websocket.Conn, window time.Duration, listener protocol.Listener) {
	for {
		if window > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(window))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}

		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.end(listener, closeInfoOf(err))
			return
		}
		if len(frame) == 0 {
			continue
		}

		switch frame[0] {
		case EnginePing:
			if err = t.write(conn, string(EnginePong)); err != nil {
				t.opts.Logger.Warn("Failed to answer engine.io ping", log.Error(err))
			}
		case EngineClose:
			_ = conn.Close()
			t.end(listener, protocol.CloseInfo{Code: protocol.CloseServerDisconnect, Reason: "engine.io close"})
			return
		case EngineMessage:
			if stop := t.handlePacket(conn, frame[1:], listener); stop {
				return
			}
		}
	}
}

func (t *Transport) handlePacket(conn *websocket.Conn, data []byte, listener protocol.Listener) bool {
	p, err := DecodePacket(string(data))
	if err != nil {
		t.opts.Logger.Warn("Dropping socket.io packet", log.Error(err))
		return false
	}
	if p.Namespace != t.namespace {
		return false
	}

	switch p.Type {
	case PacketEvent:
		name, arg, err := p.Event()
		if err != nil {
			t.opts.Logger.Warn("Dropping socket.io event", log.Error(err))
			return false
		}
		msg, err := eventMessage(name, arg)
		if err != nil {
			t.opts.Logger.Warn("Dropping socket.io message", log.String("event", name), log.Error(err))
			return false
		}
		if t.isClosed() {
			return true
		}
		listener.OnMessage(msg)
	case PacketDisconnect:
		_ = conn.Close()
		t.end(listener, protocol.CloseInfo{Code: protocol.CloseServerDisconnect, Reason: "io server disconnect"})
		return true
	case PacketConnectError:
		_ = conn.Close()
		t.fail(listener, &protocol.HandshakeError{Message: p.ConnectErrorMessage()})
		return true
	}
	return false
}

// eventMessage normalises the "message" event like a raw frame and any other
// event as a message on the channel of the same name.
func eventMessage(name string, arg json.RawMessage) (protocol.Message, error) {
	if name != EventMessage {
		return protocol.Named(name, arg), nil
	}
	if len(arg) == 0 {
		arg = json.RawMessage("null")
	}
	return protocol.Decode(arg)
}

// Send emits data as a "message" event.
func (t *Transport) Send(data json.RawMessage) error {
	t.mu.Lock()
	conn, ns, ready := t.conn, t.namespace, t.open && !t.closed && !t.ended
	t.mu.Unlock()
	if !ready {
		return protocol.ErrNotOpen
	}

	p, err := EventPacket(ns, EventMessage, data)
	if err != nil {
		return errors.Wrap(err, "failed to encode event")
	}
	return errors.Wrap(t.write(conn, p.Encode()), "failed to write message")
}

func (t *Transport) write(conn *websocket.Conn, frame string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// Close leaves the namespace, then closes the socket normally. It never
// waits for a write in progress.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn, cancel, ns, open := t.conn, t.cancel, t.namespace, t.open
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	// Skip the farewell frames when a stalled write holds writeMu; closing
	// the socket aborts that write.
	if t.writeMu.TryLock() {
		deadline := time.Now().Add(time.Second)
		if open {
			_ = conn.SetWriteDeadline(deadline)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(Packet{Type: PacketDisconnect, Namespace: ns}.Encode()))
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
		t.writeMu.Unlock()
	}

	return conn.Close()
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Transport) settle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.ended {
		return false
	}
	t.ended = true
	return true
}

func (t *Transport) fail(listener protocol.Listener, err error) {
	if t.settle() {
		listener.OnError(err)
	}
}

func (t *Transport) end(listener protocol.Listener, info protocol.CloseInfo) {
	if t.settle() {
		listener.OnClose(info)
	}
}

// DialURL turns an http(s) or ws(s) endpoint into the Engine.IO WebSocket
// URL. An endpoint without a path uses target.Path or DefaultPath.
func DialURL(target protocol.Target) (string, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return "", errors.Wrap(err, "invalid socket.io url")
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported socket.io scheme %q", u.Scheme)
	}

	path := target.Path
	if path == "" {
		path = DefaultPath
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = path
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func closeInfoOf(err error) protocol.CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return protocol.CloseInfo{Code: ce.Code, Reason: ce.Text, Clean: ce.Code == websocket.CloseNormalClosure}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return protocol.CloseInfo{Code: protocol.ClosePingTimeout, Reason: "ping timeout"}
	}
	return protocol.CloseInfo{Code: protocol.CloseAbnormal, Reason: err.Error()}
}
