package socketio

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu       sync.Mutex
	opened   int
	messages []protocol.Message
	closes   []protocol.CloseInfo
	errs     []error
}

func (r *recorder) OnOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened++
}

func (r *recorder) OnMessage(msg protocol.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) OnClose(info protocol.CloseInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes = append(r.closes, info)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) counts() (opened, messages, closes, errs int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.opened, len(r.messages), len(r.closes), len(r.errs)
}

// fakeServer is a minimal Engine.IO v4 / Socket.IO v5 endpoint. It records
// every frame the client writes after the handshake.
type fakeServer struct {
	*httptest.Server
	mu     sync.Mutex
	frames []string
	pongs  int
	conns  chan *websocket.Conn
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{conns: make(chan *websocket.Conn, 1)}
	upgrader := websocket.Upgrader{}

	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/socket.io/" || r.URL.Query().Get("EIO") != "4" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage,
			[]byte(`0{"sid":"s1","upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`))

		_, connect, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if string(connect) != `40{"token":"secret"}` {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`44{"message":"Authentication error: invalid token"}`))
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`40{"sid":"n1"}`))
		fs.conns <- conn

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			fs.mu.Lock()
			if string(data) == "3" {
				fs.pongs++
			} else {
				fs.frames = append(fs.frames, string(data))
			}
			fs.mu.Unlock()
		}
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) snapshot() ([]string, int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]string(nil), fs.frames...), fs.pongs
}

func TestTransport_HandshakeAndEvents(t *testing.T) {
	fs := newFakeServer(t)
	rec := &recorder{}
	tr := New(Options{})
	tr.Open(protocol.Target{URL: fs.URL, Token: "secret"}, rec)

	var server *websocket.Conn
	select {
	case server = <-fs.conns:
	case <-time.After(2 * time.Second):
		t.Fatal("namespace connect never completed")
	}
	require.Eventually(t, func() bool {
		opened, _, _, _ := rec.counts()
		return opened == 1
	}, 2*time.Second, 10*time.Millisecond)

	for _, frame := range []string{
		`42["alerts",{"level":"high"}]`,
		`42["message",{"channel":"metrics","payload":{"cpu":3}}]`,
		`2`,
		`42/other,["ignored",1]`,
	} {
		require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(frame)))
	}

	require.Eventually(t, func() bool {
		_, msgs, _, _ := rec.counts()
		_, pongs := fs.snapshot()
		return msgs == 2 && pongs == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	assert.Equal(t, "alerts", rec.messages[0].Channel)
	assert.JSONEq(t, `{"level":"high"}`, string(rec.messages[0].Payload))
	assert.Equal(t, "metrics", rec.messages[1].Channel)
	assert.JSONEq(t, `{"cpu":3}`, string(rec.messages[1].Payload))
	rec.mu.Unlock()

	require.NoError(t, tr.Send(json.RawMessage(`{"type":"ping","timestamp":1}`)))
	require.Eventually(t, func() bool {
		frames, _ := fs.snapshot()
		return len(frames) == 1
	}, 2*time.Second, 10*time.Millisecond)
	frames, _ := fs.snapshot()
	assert.Equal(t, `42["message",{"type":"ping","timestamp":1}]`, frames[0])

	require.NoError(t, tr.Close())
	require.Eventually(t, func() bool {
		frames, _ := fs.snapshot()
		return len(frames) == 2
	}, 2*time.Second, 10*time.Millisecond)
	frames, _ = fs.snapshot()
	assert.Equal(t, `41`, frames[1])

	_, _, closes, errs := rec.counts()
	assert.Zero(t, closes)
	assert.Zero(t, errs)
}

func TestTransport_ConnectErrorIsAuthFailure(t *testing.T) {
	fs := newFakeServer(t)
	rec := &recorder{}
	New(Options{}).Open(protocol.Target{URL: fs.URL, Token: "wrong"}, rec)

	require.Eventually(t, func() bool {
		_, _, _, errs := rec.counts()
		return errs == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Zero(t, rec.opened)
	var hs *protocol.HandshakeError
	require.ErrorAs(t, rec.errs[0], &hs)
	assert.Equal(t, protocol.ErrorAuthenticationFailed, protocol.Classify(rec.errs[0]))
}

func TestTransport_ServerDisconnect(t *testing.T) {
	fs := newFakeServer(t)
	rec := &recorder{}
	tr := New(Options{})
	tr.Open(protocol.Target{URL: strings.Replace(fs.URL, "http", "ws", 1), Token: "secret"}, rec)

	server := <-fs.conns
	require.NoError(t, server.WriteMessage(websocket.TextMessage, []byte(`41`)))

	require.Eventually(t, func() bool {
		_, _, closes, _ := rec.counts()
		return closes == 1
	}, 2*time.Second, 10*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, protocol.CloseServerDisconnect, rec.closes[0].Code)
	assert.False(t, rec.closes[0].Clean)
	require.ErrorIs(t, tr.Send(json.RawMessage(`{}`)), protocol.ErrNotOpen)
}
