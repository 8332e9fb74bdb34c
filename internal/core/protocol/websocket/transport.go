package websocket

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/pkg/errors"
)

var _ protocol.Transport = (*Transport)(nil)

// Options tune the raw WebSocket adapter.
type Options struct {
	// Dialer defaults to a copy of websocket.DefaultDialer.
	Dialer *websocket.Dialer
	Header http.Header
	// HandshakeTimeout bounds the HTTP upgrade.
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// MaxMessageSize caps inbound frames, zero means unlimited.
	MaxMessageSize int64
	Logger         log.Log
}

func (o Options) withDefaults() Options {
	if o.Dialer == nil {
		d := *websocket.DefaultDialer
		o.Dialer = &d
	}
	if o.HandshakeTimeout > 0 {
		d := *o.Dialer
		d.HandshakeTimeout = o.HandshakeTimeout
		o.Dialer = &d
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

// Transport is a raw WebSocket carrying one JSON document per text frame.
// The token travels as the "token" query parameter.
type Transport struct {
	opts Options

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	open   bool
	closed bool
	ended  bool

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func New(opts Options) *Transport {
	return &Transport{opts: opts.withDefaults()}
}

// Factory builds a fresh Transport per connection attempt.
func Factory(opts Options) protocol.Factory {
	return func() protocol.Transport { return New(opts) }
}

func (t *Transport) Kind() protocol.Kind { return protocol.KindWebSocket }

func (t *Transport) Open(target protocol.Target, listener protocol.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
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
		t.fail(listener, errors.Wrap(err, "failed to dial websocket"))
		return
	}
	if t.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(t.opts.MaxMessageSize)
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.Close()
		return
	}
	t.conn = conn
	t.open = true
	t.mu.Unlock()

	listener.OnOpen()
	t.readPump(conn, listener)
}

func (t *Transport) readPump(conn *websocket.Conn, listener protocol.Listener) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.end(listener, CloseInfoOf(err))
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			t.opts.Logger.Warn("Dropping malformed websocket frame", log.Int("bytes", len(data)), log.Error(err))
			continue
		}
		if t.isClosed() {
			return
		}
		listener.OnMessage(msg)
	}
}

// Send writes data as one text frame.
func (t *Transport) Send(data json.RawMessage) error {
	t.mu.Lock()
	conn, ready := t.conn, t.open && !t.closed && !t.ended
	t.mu.Unlock()
	if !ready {
		return protocol.ErrNotOpen
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	return nil
}

// Close sends a normal-closure frame and releases the socket. It never waits
// for a write in progress.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn, cancel := t.conn, t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	// A stalled write holds writeMu; closing the socket below aborts it, so
	// the close frame is skipped rather than waited for.
	if t.writeMu.TryLock() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		t.writeMu.Unlock()
	}

	return conn.Close()
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// settle marks the transport ended and reports whether the terminal callback
// should still be delivered.
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

// DialURL appends the token query parameter to target.URL.
func DialURL(target protocol.Target) (string, error) {
	u, err := url.Parse(target.URL)
	if err != nil {
		return "", errors.Wrap(err, "invalid websocket url")
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", errors.Errorf("unsupported websocket scheme %q", u.Scheme)
	}
	if target.Token != "" {
		q := u.Query()
		q.Set("token", target.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// CloseInfoOf maps a read error to the close it represents.
func CloseInfoOf(err error) protocol.CloseInfo {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return protocol.CloseInfo{
			Code:   ce.Code,
			Reason: ce.Text,
			Clean:  ce.Code == websocket.CloseNormalClosure,
		}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return protocol.CloseInfo{Code: protocol.ClosePingTimeout, Reason: "read timeout"}
	}
	return protocol.CloseInfo{Code: protocol.CloseAbnormal, Reason: err.Error()}
}
