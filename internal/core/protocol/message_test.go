package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_ChannelPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		channel string
		typ     string
	}{
		{"channel wins", `{"channel":"alerts","event":"e","type":"t"}`, "alerts", "t"},
		{"event before type", `{"event":"inventory","type":"update"}`, "inventory", "update"},
		{"type only", `{"type":"metrics"}`, "metrics", "metrics"},
		{"nothing", `{"value":1}`, DefaultChannel, ""},
		{"empty channel falls through", `{"channel":"","event":"orders"}`, "orders", ""},
		{"non-string channel ignored", `{"channel":7,"type":"pong"}`, "pong", "pong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.channel, msg.Channel)
			assert.Equal(t, tt.typ, msg.Type)
		})
	}
}

func TestDecode_Payload(t *testing.T) {
	msg, err := Decode([]byte(`{"channel":"alerts","payload":{"level":"high"}}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":"high"}`, string(msg.Payload))

	var body struct {
		Level string `json:"level"`
	}
	require.NoError(t, msg.Decode(&body))
	assert.Equal(t, "high", body.Level)

	whole := `{"channel":"alerts","level":"low"}`
	msg, err = Decode([]byte(whole))
	require.NoError(t, err)
	assert.JSONEq(t, whole, string(msg.Payload))

	nullPayload := `{"channel":"alerts","payload":null}`
	msg, err = Decode([]byte(nullPayload))
	require.NoError(t, err)
	assert.JSONEq(t, nullPayload, string(msg.Payload))
}

func TestDecode_NonObjectFrames(t *testing.T) {
	for _, frame := range []string{`[1,2,3]`, `"hello"`, `null`, `42`} {
		msg, err := Decode([]byte(frame))
		require.NoError(t, err, frame)
		assert.Equal(t, DefaultChannel, msg.Channel)
		assert.Equal(t, frame, string(msg.Payload))
	}
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"channel":`))
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestDecode_ControlFrames(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"pong","timestamp":1}`))
	require.NoError(t, err)
	assert.True(t, msg.IsPong())
	assert.True(t, msg.IsControl())

	msg, err = Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.True(t, msg.IsPing())

	msg, err = Decode([]byte(`{"channel":"pong"}`))
	require.NoError(t, err)
	assert.False(t, msg.IsControl(), "a data channel named pong is not a control frame")
}

func TestNamed(t *testing.T) {
	msg := Named("inventory", json.RawMessage(`{"sku":"a1"}`))
	assert.Equal(t, "inventory", msg.Channel)
	assert.JSONEq(t, `{"sku":"a1"}`, string(msg.Payload))

	msg = Named("tick", nil)
	assert.Equal(t, "null", string(msg.Payload))
}

func TestControlFrameEncoding(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	assert.JSONEq(t, `{"type":"ping","timestamp":1700000000123}`, string(PingFrame(at)))
	assert.JSONEq(t, `{"type":"pong","timestamp":1700000000123}`, string(PongFrame(at)))
	assert.JSONEq(t, `{"type":"subscribe","channel":"alerts"}`, string(SubscribeFrame("alerts")))
	assert.JSONEq(t, `{"type":"unsubscribe","channel":"alerts"}`, string(UnsubscribeFrame("alerts")))
	assert.JSONEq(t, `{"type":"auth","token":"secret"}`, string(AuthFrame("secret")))
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"websocket": KindWebSocket,
		"WS":        KindWebSocket,
		"socket.io": KindSocketIO,
		" sio ":     KindSocketIO,
		"quic":      KindQUIC,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseKind("carrier-pigeon")
	require.ErrorIs(t, err, ErrUnsupportedTransport)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, err := r.New(KindQUIC)
	require.ErrorIs(t, err, ErrUnsupportedTransport)

	built := 0
	r.Register(KindWebSocket, func() Transport {
		built++
		return nil
	})
	r.Register(KindSocketIO, func() Transport { return nil })

	_, err = r.New(KindWebSocket)
	require.NoError(t, err)
	_, err = r.New(KindWebSocket)
	require.NoError(t, err)
	assert.Equal(t, 2, built, "every attempt gets a fresh transport")
	assert.Equal(t, []Kind{KindSocketIO, KindWebSocket}, r.Kinds())
}
