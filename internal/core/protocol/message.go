package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// WildcardChannel receives every inbound message.
	WildcardChannel = "*"
	// DefaultChannel tags frames that carry no channel, event or type.
	DefaultChannel = "default"
)

// Control frame types.
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypeAuth        = "auth"
)

// Message is a normalised inbound frame.
type Message struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type,omitempty"`
	Payload json.RawMessage `json:"payload"`
	// ReceivedAt is stamped by the session when the frame is dispatched.
	ReceivedAt time.Time `json:"-"`
}

// IsPing reports a liveness check from the server.
func (m Message) IsPing() bool { return m.Type == TypePing }

// IsPong reports a liveness acknowledgment from the server.
func (m Message) IsPong() bool { return m.Type == TypePong }

// IsControl reports frames that are consumed by the session and never
// dispatched to subscribers.
func (m Message) IsControl() bool { return m.IsPing() || m.IsPong() }

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// Decode normalises a raw JSON frame. The channel is the first non-empty
// string among the "channel", "event" and "type" fields, DefaultChannel
// otherwise. The payload is the "payload" field when present and non-null,
// the whole frame otherwise.
func Decode(raw []byte) (Message, error) {
	if !json.Valid(raw) {
		return Message{}, fmt.Errorf("%w: invalid json", ErrMalformedFrame)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		// Arrays, strings and other non-object frames are opaque payloads.
		return Message{Channel: DefaultChannel, Payload: clone(raw)}, nil
	}

	msg := Message{
		Channel: firstString(fields, "channel", "event", "type"),
		Type:    stringField(fields, "type"),
	}
	if msg.Channel == "" {
		msg.Channel = DefaultChannel
	}
	if p, ok := fields["payload"]; ok && string(p) != "null" {
		msg.Payload = clone(p)
	} else {
		msg.Payload = clone(raw)
	}
	return msg, nil
}

// Named builds a message for a protocol with named events, such as a Socket.IO
// event other than "message".
func Named(event string, data json.RawMessage) Message {
	msg := Message{Channel: event, Type: event, Payload: clone(data)}
	if len(msg.Payload) == 0 {
		msg.Payload = json.RawMessage("null")
	}
	return msg
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		if s := stringField(fields, k); s != "" {
			return s
		}
	}
	return ""
}

func clone(b []byte) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

type controlFrame struct {
	Type      string `json:"type"`
	Channel   string `json:"channel,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Token     string `json:"token,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// PingFrame is the heartbeat frame sent by the client.
func PingFrame(at time.Time) json.RawMessage {
	return mustMarshal(controlFrame{Type: TypePing, Timestamp: at.UnixMilli()})
}

// PongFrame answers a server ping.
func PongFrame(at time.Time) json.RawMessage {
	return mustMarshal(controlFrame{Type: TypePong, Timestamp: at.UnixMilli()})
}

// SubscribeFrame asks the server to start routing channel to this client.
func SubscribeFrame(channel string) json.RawMessage {
	return mustMarshal(controlFrame{Type: TypeSubscribe, Channel: channel})
}

// UnsubscribeFrame asks the server to stop routing channel to this client.
func UnsubscribeFrame(channel string) json.RawMessage {
	return mustMarshal(controlFrame{Type: TypeUnsubscribe, Channel: channel})
}

// AuthFrame carries the bearer token for protocols without a URL or
// handshake slot for it.
func AuthFrame(token string) json.RawMessage {
	return mustMarshal(controlFrame{Type: TypeAuth, Token: token})
}

// Envelope is the outbound shape of a server push.
type Envelope struct {
	Channel string `json:"channel"`
	Payload any    `json:"payload"`
}
