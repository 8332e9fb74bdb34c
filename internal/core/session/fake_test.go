package session

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/events/bus"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

var errWriteFailed = errors.New("write failed: broken pipe")

// fakeTransport records what the session does with it. Tests drive the
// listener callbacks directly.
type fakeTransport struct {
	mu       sync.Mutex
	target   protocol.Target
	listener protocol.Listener
	sent     []json.RawMessage
	closed   bool
	failSend bool
	// gate, when set, holds every write until it is closed or the transport
	// closes.
	gate    chan struct{}
	stalled int
	done    chan struct{}
}

func (f *fakeTransport) Kind() protocol.Kind { return protocol.KindWebSocket }

func (f *fakeTransport) Open(target protocol.Target, l protocol.Listener) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.target = target
	f.listener = l
}

func (f *fakeTransport) Send(data json.RawMessage) error {
	f.mu.Lock()
	gate := f.gate
	if gate != nil {
		f.stalled++
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-f.done:
		}
		f.mu.Lock()
		f.stalled--
		f.mu.Unlock()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return protocol.ErrNotOpen
	}
	if f.failSend {
		return errWriteFailed
	}
	f.sent = append(f.sent, append(json.RawMessage(nil), data...))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeTransport) open()                            { f.listener.OnOpen() }
func (f *fakeTransport) fail(err error)                   { f.listener.OnError(err) }
func (f *fakeTransport) closeWith(info protocol.CloseInfo) { f.listener.OnClose(info) }

func (f *fakeTransport) push(t *testing.T, frame string) {
	t.Helper()
	msg, err := protocol.Decode([]byte(frame))
	require.NoError(t, err)
	f.listener.OnMessage(msg)
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, d := range f.sent {
		out[i] = string(d)
	}
	return out
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// stall holds writes like a peer that stopped reading. The returned func
// lets them through again.
func (f *fakeTransport) stall() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.gate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *fakeTransport) stalledWrites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stalled
}

func (f *fakeTransport) setFailSend(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failSend = v
}

// fakeNetwork hands out one fakeTransport per connection attempt.
type fakeNetwork struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (n *fakeNetwork) registry() *protocol.Registry {
	r := protocol.NewRegistry()
	r.Register(protocol.KindWebSocket, func() protocol.Transport {
		n.mu.Lock()
		defer n.mu.Unlock()
		ft := &fakeTransport{done: make(chan struct{})}
		n.transports = append(n.transports, ft)
		return ft
	})
	return r
}

func (n *fakeNetwork) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transports)
}

// attempt waits for the i-th transport (1-based) to be opened.
func (n *fakeNetwork) attempt(t *testing.T, i int) *fakeTransport {
	t.Helper()
	require.Eventually(t, func() bool {
		n.mu.Lock()
		defer n.mu.Unlock()
		if len(n.transports) < i {
			return false
		}
		ft := n.transports[i-1]
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return ft.listener != nil
	}, waitFor, tick, "transport %d never opened", i)

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.transports[i-1]
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(waiters int)
}

// eventLog collects lifecycle events in delivery order.
type eventLog struct {
	mu     sync.Mutex
	events []bus.Event
}

func (l *eventLog) record(ev bus.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) named(name string) []bus.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []bus.Event
	for _, ev := range l.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	session *Session
	network *fakeNetwork
	clock   fakeClock
	events  *eventLog
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.URL = "wss://realtime.example.com/ws"
	return cfg
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	return newHarnessWith(t, cfg, StaticToken("token-1"))
}

func newHarnessWith(t *testing.T, cfg Config, creds CredentialSource) *harness {
	t.Helper()
	h := &harness{
		network: &fakeNetwork{},
		clock:   clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		events:  &eventLog{},
	}
	h.session = New(cfg, creds,
		WithClock(h.clock),
		WithTransports(h.network.registry()))
	for _, name := range []string{
		EventConnected, EventDisconnected, EventStateChange,
		EventConnectionFailed, EventMessage, EventError,
	} {
		h.session.On(name, h.events.record)
	}
	t.Cleanup(h.session.Disconnect)
	return h
}

// connect runs Connect in the background, completes the handshake of the
// next transport and waits for Connect to return.
func (h *harness) connect(t *testing.T) *fakeTransport {
	t.Helper()
	n := h.network.count() + 1
	done := make(chan error, 1)
	go func() { done <- h.session.Connect(t.Context()) }()

	ft := h.network.attempt(t, n)
	ft.open()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Connect did not return")
	}
	require.Equal(t, StateConnected, h.session.State())
	return ft
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.session.State() == want },
		waitFor, tick, "state never became %s", want)
}
