package session

import (
	"time"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol/quic"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol/socketio"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol/websocket"
)

// TransportOptions are shared by every built-in adapter.
type TransportOptions struct {
	HandshakeTimeout time.Duration
	// InsecureSkipVerify disables certificate checks of the QUIC adapter.
	InsecureSkipVerify bool
	Logger             log.Log
}

// DefaultTransports registers the raw WebSocket, Socket.IO and QUIC adapters.
func DefaultTransports(opts TransportOptions) *protocol.Registry {
	r := protocol.NewRegistry()
	r.Register(protocol.KindWebSocket, websocket.Factory(websocket.Options{
		HandshakeTimeout: opts.HandshakeTimeout,
		Logger:           opts.Logger,
	}))
	r.Register(protocol.KindSocketIO, socketio.Factory(socketio.Options{
		HandshakeTimeout: opts.HandshakeTimeout,
		Logger:           opts.Logger,
	}))
	r.Register(protocol.KindQUIC, quic.Factory(quic.Options{
		HandshakeTimeout:   opts.HandshakeTimeout,
		InsecureSkipVerify: opts.InsecureSkipVerify,
		Logger:             opts.Logger,
	}))
	return r
}
