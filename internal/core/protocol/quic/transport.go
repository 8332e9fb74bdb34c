package quic

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
)

var _ protocol.Transport = (*Transport)(nil)

// ALPN is the application protocol negotiated during the TLS handshake.
const ALPN = "omnix-realtime"

type Options struct {
	// TLSConfig defaults to TLS 1.3 with ALPN and the URL host as server name.
	TLSConfig *tls.Config
	// InsecureSkipVerify is for development servers with self-signed
	// certificates.
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	KeepAlivePeriod    time.Duration
	MaxIdleTimeout     time.Duration
	MaxFrameSize       uint64
	Logger             log.Log
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.KeepAlivePeriod <= 0 {
		o.KeepAlivePeriod = 15 * time.Second
	}
	if o.MaxIdleTimeout <= 0 {
		o.MaxIdleTimeout = 60 * time.Second
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = DefaultMaxFrameSize
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

// Transport carries length-prefixed JSON frames over one bidirectional QUIC
// stream. The first frame on the stream authenticates the client.
type Transport struct {
	opts Options

	mu     sync.Mutex
	conn   *quic.Conn
	stream *quic.Stream
	cancel context.CancelFunc
	open   bool
	closed bool
	ended  bool

	writeMu sync.Mutex
}

func New(opts Options) *Transport {
	return &Transport{opts: opts.withDefaults()}
}

func Factory(opts Options) protocol.Factory {
	return func() protocol.Transport { return New(opts) }
}

func (t *Transport) Kind() protocol.Kind { return protocol.KindQUIC }

func (t *Transport) Open(target protocol.Target, listener protocol.Listener) {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx, target, listener)
}

func (t *Transport) run(ctx context.Context, target protocol.Target, listener protocol.Listener) {
	addr, host, err := dialAddr(target.URL)
	if err != nil {
		t.fail(listener, err)
		return
	}

	conn, err := quic.DialAddr(ctx, addr, t.tlsConfig(host), &quic.Config{
		HandshakeIdleTimeout: t.opts.HandshakeTimeout,
		KeepAlivePeriod:      t.opts.KeepAlivePeriod,
		MaxIdleTimeout:       t.opts.MaxIdleTimeout,
	})
	if err != nil {
		t.fail(listener, errors.Wrap(err, "failed to dial quic connection"))
		return
	}

	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "stream open failed")
		t.fail(listener, errors.Wrap(err, "failed to open quic stream"))
		return
	}

	if err = WriteFrame(stream, protocol.AuthFrame(target.Token)); err != nil {
		_ = conn.CloseWithError(0, "auth failed")
		t.fail(listener, errors.Wrap(err, "failed to send auth frame"))
		return
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = conn.CloseWithError(0, "client disconnect")
		return
	}
	t.conn, t.stream, t.open = conn, stream, true
	t.mu.Unlock()

	t.opts.Logger.Debug("QUIC stream established",
		log.String("remote_addr", conn.RemoteAddr().String()),
		log.Int64("stream_id", int64(stream.StreamID())))

	listener.OnOpen()
	t.readLoop(stream, listener)
}

func (t *Transport) readLoop(stream *quic.Stream, listener protocol.Listener) {
	for {
		data, err := ReadFrame(stream, t.opts.MaxFrameSize)
		if err != nil {
			t.end(listener, closeInfoOf(err))
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			t.opts.Logger.Warn("Dropping malformed quic frame", log.Int("bytes", len(data)), log.Error(err))
			continue
		}
		if t.isClosed() {
			return
		}
		listener.OnMessage(msg)
	}
}

func (t *Transport) Send(data json.RawMessage) error {
	t.mu.Lock()
	stream, ready := t.stream, t.open && !t.closed && !t.ended
	t.mu.Unlock()
	if !ready {
		return protocol.ErrNotOpen
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := stream.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
		return errors.Wrap(err, "failed to set write deadline")
	}
	return WriteFrame(stream, data)
}

// Close closes the connection with application error code 0, which the peer
// sees as a normal closure.
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
	return conn.CloseWithError(0, "client disconnect")
}

func (t *Transport) tlsConfig(host string) *tls.Config {
	var cfg *tls.Config
	if t.opts.TLSConfig != nil {
		cfg = t.opts.TLSConfig.Clone()
	} else {
		cfg = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = []string{ALPN}
	}
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}
	if t.opts.InsecureSkipVerify {
		cfg.InsecureSkipVerify = true
	}
	return cfg
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

func dialAddr(raw string) (addr, host string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Wrap(err, "invalid quic url")
	}
	if u.Scheme != "quic" {
		return "", "", errors.Errorf("unsupported quic scheme %q", u.Scheme)
	}
	if u.Port() == "" {
		return "", "", errors.Errorf("quic url %q has no port", raw)
	}
	return u.Host, u.Hostname(), nil
}

func closeInfoOf(err error) protocol.CloseInfo {
	if errors.Is(err, io.EOF) {
		return protocol.CloseInfo{Code: protocol.CloseNormal, Reason: "stream finished", Clean: true}
	}
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.ErrorCode == 0 {
			return protocol.CloseInfo{Code: protocol.CloseNormal, Reason: appErr.ErrorMessage, Clean: true}
		}
		return protocol.CloseInfo{Code: protocol.CloseServerDisconnect, Reason: appErr.ErrorMessage}
	}
	var idle *quic.IdleTimeoutError
	if errors.As(err, &idle) {
		return protocol.CloseInfo{Code: protocol.ClosePingTimeout, Reason: "idle timeout"}
	}
	return protocol.CloseInfo{Code: protocol.CloseAbnormal, Reason: err.Error()}
}
