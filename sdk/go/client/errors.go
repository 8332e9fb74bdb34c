package client

import (
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
)

var (
	ErrNoCredential         = session.ErrNoCredential
	ErrSessionClosed        = session.ErrSessionClosed
	ErrReconnectExhausted   = session.ErrReconnectExhausted
	ErrHandshakeTimeout     = session.ErrHandshakeTimeout
	ErrHeartbeatTimeout     = session.ErrHeartbeatTimeout
	ErrUnsupportedTransport = protocol.ErrUnsupportedTransport
	ErrNotOpen              = protocol.ErrNotOpen
)

// Classify maps an error to the category reported with EventError.
func Classify(err error) ErrorKind { return protocol.Classify(err) }
