package session

import (
	"errors"
	"fmt"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

var (
	ErrNoCredential       = errors.New("no credential available")
	ErrSessionClosed      = errors.New("session closed")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
	ErrHandshakeTimeout   = errors.New("handshake timeout")
	ErrHeartbeatTimeout   = errors.New("heartbeat timeout")
)

// TransportError is the data of EventError.
type TransportError struct {
	Kind protocol.ErrorKind
	Err  error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// CloseError reports a connection the server ended.
type CloseError struct {
	Info protocol.CloseInfo
}

func (e *CloseError) Error() string {
	return "connection closed: " + e.Info.String()
}
