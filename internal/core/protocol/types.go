package protocol

import (
	"fmt"
	"strings"
)

// Kind names a wire protocol adapter.
type Kind string

const (
	// KindWebSocket is a raw bidirectional WebSocket carrying JSON frames,
	// authenticated by a token query parameter.
	KindWebSocket Kind = "websocket"
	// KindSocketIO is Socket.IO over an Engine.IO v4 WebSocket, authenticated
	// by the namespace CONNECT payload.
	KindSocketIO Kind = "socketio"
	// KindQUIC is length-prefixed JSON frames over one bidirectional QUIC
	// stream, authenticated by the first frame.
	KindQUIC Kind = "quic"
)

// ParseKind accepts the names used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "websocket", "ws", "raw":
		return KindWebSocket, nil
	case "socketio", "socket.io", "sio":
		return KindSocketIO, nil
	case "quic":
		return KindQUIC, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedTransport, s)
	}
}

func (k Kind) String() string {
	return string(k)
}

// Target is everything an adapter needs to reach and authenticate against an
// endpoint.
type Target struct {
	URL   string
	Token string
	// Namespace is the Socket.IO namespace, "/" when empty.
	Namespace string
	// Path is the Engine.IO mount path, "/socket.io/" when empty.
	Path string
}

// Close codes reported through CloseInfo.
const (
	CloseNormal           = 1000
	CloseGoingAway        = 1001
	CloseAbnormal         = 1006
	CloseServerDisconnect = 4000
	ClosePingTimeout      = 4001
)

// CloseInfo describes how a transport ended.
type CloseInfo struct {
	Code   int
	Reason string
	// Clean is true only for a normal closure, which must not trigger a
	// reconnect.
	Clean bool
}

func (c CloseInfo) String() string {
	return fmt.Sprintf("code=%d reason=%q clean=%t", c.Code, c.Reason, c.Clean)
}
