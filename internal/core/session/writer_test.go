package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// returnsPromptly fails the test when fn does not return within half a
// second.
func returnsPromptly(t *testing.T, name string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("%s blocked while a write was stalled", name)
	}
}

func TestSend_StalledWriteDoesNotBlockSession(t *testing.T) {
	h := newHarness(t, testConfig())
	ft := h.connect(t)
	release := ft.stall()
	defer release()

	h.session.Send("stuck")
	require.Eventually(t, func() bool { return ft.stalledWrites() == 1 }, waitFor, tick)

	returnsPromptly(t, "State", func() { assert.Equal(t, StateConnected, h.session.State()) })
	returnsPromptly(t, "Metrics", func() { assert.Zero(t, h.session.Metrics().MessagesSent) })
	returnsPromptly(t, "Send", func() { h.session.Send("second") })
	returnsPromptly(t, "Pending", func() { h.session.Pending() })
	returnsPromptly(t, "Disconnect", h.session.Disconnect)

	assert.Equal(t, StateDisconnected, h.session.State())
	assert.True(t, ft.isClosed())
	require.Eventually(t, func() bool { return ft.stalledWrites() == 0 }, waitFor, tick,
		"closing the transport ends the stalled write")
	assert.Empty(t, ft.frames())
	assert.Zero(t, h.session.Metrics().QueueDepth)
}

func TestSend_WritesKeepOrderBehindStalledWrite(t *testing.T) {
	h := newHarness(t, testConfig())
	ft := h.connect(t)
	release := ft.stall()

	h.session.Send(1)
	require.Eventually(t, func() bool { return ft.stalledWrites() == 1 }, waitFor, tick)
	h.session.Send(2)
	h.session.Send(3)

	release()
	require.Eventually(t, func() bool { return len(ft.frames()) == 3 }, waitFor, tick)
	assert.Equal(t, []string{"1", "2", "3"}, ft.frames())
	require.Eventually(t, func() bool { return h.session.Metrics().MessagesSent == 3 }, waitFor, tick)
}

func TestHeartbeat_DeclaresDeadWhileWriteStalled(t *testing.T) {
	h := newHarness(t, testConfig())
	ft := h.connect(t)
	release := ft.stall()
	defer release()

	h.session.Send("first")
	require.Eventually(t, func() bool { return ft.stalledWrites() == 1 }, waitFor, tick)
	h.session.Send("second")

	require.Eventually(t, func() bool {
		h.clock.Advance(DefaultHeartbeatInterval)
		for _, ev := range h.events.named(EventError) {
			if errors.Is(ev.Data.(TransportError), ErrHeartbeatTimeout) {
				return true
			}
		}
		return false
	}, waitFor, tick)
	assert.True(t, ft.isClosed())

	// Both frames survive the dead connection, in send order.
	require.Eventually(t, func() bool { return len(h.session.Pending()) == 2 }, waitFor, tick)
	pending := h.session.Pending()
	assert.Equal(t, `"first"`, string(pending[0].Payload))
	assert.Equal(t, `"second"`, string(pending[1].Payload))
}
