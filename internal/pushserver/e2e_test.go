package pushserver_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/events/bus"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/pushserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type inbox struct {
	mu   sync.Mutex
	msgs []protocol.Message
}

func (i *inbox) handle(msg protocol.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return nil
}

func (i *inbox) len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.msgs)
}

func (i *inbox) get(n int) protocol.Message {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.msgs[n]
}

func startServer(t *testing.T) (*pushserver.Server, string) {
	t.Helper()
	srv := pushserver.New(pushserver.Config{Token: "secret"}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Kick(false)
		ts.Close()
	})
	return srv, ts.URL
}

func newSession(t *testing.T, url string, kind protocol.Kind) *session.Session {
	t.Helper()
	cfg := session.DefaultConfig()
	cfg.URL = url
	cfg.Kind = kind
	cfg.Backoff = session.Backoff{Base: 20 * time.Millisecond, Max: 100 * time.Millisecond}
	cfg.DrainStagger = 5 * time.Millisecond
	s := session.New(cfg, session.StaticToken("secret"))
	t.Cleanup(s.Disconnect)
	return s
}

func TestSession_EndToEnd(t *testing.T) {
	for _, tc := range []struct {
		name string
		path string
		kind protocol.Kind
	}{
		{"websocket", "/ws", protocol.KindWebSocket},
		{"socketio", "", protocol.KindSocketIO},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, base := startServer(t)
			s := newSession(t, base+tc.path, tc.kind)

			alerts := &inbox{}
			s.Subscribe("alerts", alerts.handle)
			s.Send(map[string]string{"hello": "server"})

			ctx, cancel := context.WithTimeout(context.Background(), waitFor)
			defer cancel()
			require.NoError(t, s.Connect(ctx))
			require.Equal(t, session.StateConnected, s.State())
			require.Eventually(t, func() bool { return srv.Subscribers("alerts") == 1 }, waitFor, tick)

			// A second session only follows inventory and must not see alerts.
			other := newSession(t, base+tc.path, tc.kind)
			inventory := &inbox{}
			other.Subscribe(pushserver.ChannelInventory, inventory.handle)
			require.NoError(t, other.Connect(ctx))
			require.Eventually(t, func() bool { return srv.Subscribers(pushserver.ChannelInventory) == 1 }, waitFor, tick)

			n, err := srv.Publish("alerts", map[string]int{"level": 2})
			require.NoError(t, err)
			require.Equal(t, 1, n)
			require.Eventually(t, func() bool { return alerts.len() == 1 }, waitFor, tick)
			assert.Equal(t, "alerts", alerts.get(0).Channel)
			assert.JSONEq(t, `{"level":2}`, string(alerts.get(0).Payload))
			assert.Never(t, func() bool { return inventory.len() > 0 }, 100*time.Millisecond, tick,
				"alerts never reach an inventory subscriber")

			require.Eventually(t, func() bool { return len(srv.Received()) == 1 }, waitFor, tick)
			assert.JSONEq(t, `{"hello":"server"}`, string(srv.Received()[0].Message.Payload))

			// A dropped connection is re-established and the channel re-announced.
			srv.Kick(false)
			require.Eventually(t, func() bool { return s.Metrics().Reconnects >= 1 }, waitFor, tick)
			require.Eventually(t, func() bool {
				return s.State() == session.StateConnected &&
					other.State() == session.StateConnected &&
					srv.Stats().Clients == 2 &&
					srv.Subscribers("alerts") == 1
			}, waitFor, tick)

			_, err = srv.Publish("alerts", "again")
			require.NoError(t, err)
			require.Eventually(t, func() bool { return alerts.len() == 2 }, waitFor, tick)
			assert.Never(t, func() bool { return alerts.len() > 2 || inventory.len() > 0 }, 100*time.Millisecond, tick,
				"each push is delivered once, to its own channel only")
		})
	}
}

func TestSession_RejectedCredential(t *testing.T) {
	_, base := startServer(t)

	cfg := session.DefaultConfig()
	cfg.URL = base + "/ws"
	cfg.AutoReconnect = false
	s := session.New(cfg, session.StaticToken("wrong"))
	defer s.Disconnect()

	var mu sync.Mutex
	var kinds []protocol.ErrorKind
	s.On(session.EventError, func(ev bus.Event) error {
		mu.Lock()
		defer mu.Unlock()
		kinds = append(kinds, ev.Data.(session.TransportError).Kind)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.Error(t, s.Connect(ctx))
	assert.Equal(t, session.StateDisconnected, s.State())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(kinds) == 1
	}, waitFor, tick)
	assert.Equal(t, protocol.ErrorAuthenticationFailed, kinds[0])
}

func TestSession_CleanServerCloseStaysDown(t *testing.T) {
	srv, base := startServer(t)
	s := newSession(t, base+"/ws", protocol.KindWebSocket)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	srv.Kick(true)
	require.Eventually(t, func() bool { return s.State() == session.StateDisconnected }, waitFor, tick)
	assert.Never(t, func() bool { return s.State() != session.StateDisconnected }, 200*time.Millisecond, tick)
	require.Eventually(t, func() bool { return srv.Stats().Clients == 0 }, waitFor, tick)
}
