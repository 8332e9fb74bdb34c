package quic

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 3 * time.Second

type recorder struct {
	opened   chan struct{}
	messages chan protocol.Message
	closed   chan protocol.CloseInfo
	errs     chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		messages: make(chan protocol.Message, 8),
		closed:   make(chan protocol.CloseInfo, 1),
		errs:     make(chan error, 1),
	}
}

func (r *recorder) OnOpen() { r.opened <- struct{}{} }
func (r *recorder) OnMessage(msg protocol.Message) { r.messages <- msg }
func (r *recorder) OnClose(info protocol.CloseInfo) { r.closed <- info }
func (r *recorder) OnError(err error) { r.errs <- err }

func selfSigned(t *testing.T) tls.Certificate {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func listen(t *testing.T) *quic.Listener {
	t.Helper()
	ln, err := quic.ListenAddr("127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{selfSigned(t)},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestTransport_ExchangesFrames(t *testing.T) {
	ln := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	tr := New(Options{InsecureSkipVerify: true})
	rec := newRecorder()
	tr.Open(protocol.Target{URL: "quic://" + ln.Addr().String(), Token: "secret"}, rec)

	conn, err := ln.Accept(ctx)
	require.NoError(t, err)
	stream, err := conn.AcceptStream(ctx)
	require.NoError(t, err)

	auth, err := ReadFrame(stream, DefaultMaxFrameSize)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"auth","token":"secret"}`, string(auth))

	select {
	case <-rec.opened:
	case err := <-rec.errs:
		t.Fatalf("open failed: %v", err)
	case <-ctx.Done():
		t.Fatal("transport never opened")
	}

	require.NoError(t, WriteFrame(stream, []byte(`{"channel":"alerts","payload":{"level":1}}`)))
	select {
	case msg := <-rec.messages:
		assert.Equal(t, "alerts", msg.Channel)
		assert.JSONEq(t, `{"level":1}`, string(msg.Payload))
	case <-ctx.Done():
		t.Fatal("no message delivered")
	}

	require.NoError(t, tr.Send([]byte(`{"hello":"server"}`)))
	sent, err := ReadFrame(stream, DefaultMaxFrameSize)
	require.NoError(t, err)
	assert.JSONEq(t, `{"hello":"server"}`, string(sent))

	require.NoError(t, conn.CloseWithError(0, "bye"))
	select {
	case info := <-rec.closed:
		assert.True(t, info.Clean)
		assert.Equal(t, protocol.CloseNormal, info.Code)
	case <-ctx.Done():
		t.Fatal("close not reported")
	}

	assert.ErrorIs(t, tr.Send([]byte(`{}`)), protocol.ErrNotOpen)
	assert.NoError(t, tr.Close())
}

func TestTransport_SendHonoursWriteTimeout(t *testing.T) {
	ln := listen(t)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	tr := New(Options{InsecureSkipVerify: true, WriteTimeout: 200 * time.Millisecond})
	defer tr.Close()
	rec := newRecorder()
	tr.Open(protocol.Target{URL: "quic://" + ln.Addr().String(), Token: "secret"}, rec)

	// The peer accepts the stream but never reads, so flow control stalls
	// any write larger than its receive window.
	conn, err := ln.Accept(ctx)
	require.NoError(t, err)
	_, err = conn.AcceptStream(ctx)
	require.NoError(t, err)
	select {
	case <-rec.opened:
	case <-ctx.Done():
		t.Fatal("transport never opened")
	}

	start := time.Now()
	err = tr.Send(bytes.Repeat([]byte("a"), 8<<20))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestTransport_RejectsBadURL(t *testing.T) {
	for _, url := range []string{"ws://localhost:9000", "quic://localhost"} {
		rec := newRecorder()
		New(Options{}).Open(protocol.Target{URL: url}, rec)
		select {
		case err := <-rec.errs:
			assert.Error(t, err, url)
		case <-time.After(waitFor):
			t.Fatalf("%s: no error reported", url)
		}
	}
}

func TestTransport_SendBeforeOpen(t *testing.T) {
	assert.ErrorIs(t, New(Options{}).Send([]byte(`{}`)), protocol.ErrNotOpen)
	assert.NoError(t, New(Options{}).Close())
}
