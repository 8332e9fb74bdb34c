// Package client is the public entry point to the realtime session for
// programs outside this module.
package client

import (
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/config"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/events/bus"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/injector"
)

type (
	Session          = session.Session
	Config           = session.Config
	Backoff          = session.Backoff
	Option           = session.Option
	State            = session.State
	StateChange      = session.StateChange
	Metrics          = session.Metrics
	Handler          = session.Handler
	Subscription     = session.Subscription
	QueuedMessage    = session.QueuedMessage
	CredentialSource = session.CredentialSource
	StaticToken      = session.StaticToken
	CredentialFunc   = session.CredentialFunc
	TransportError   = session.TransportError
	CloseError       = session.CloseError

	Message   = protocol.Message
	Kind      = protocol.Kind
	ErrorKind = protocol.ErrorKind

	Event         = bus.Event
	EventHandler  = bus.Handler
	EventListener = bus.Subscription
)

const (
	StateDisconnected = session.StateDisconnected
	StateConnecting   = session.StateConnecting
	StateConnected    = session.StateConnected
	StateReconnecting = session.StateReconnecting

	EventConnected        = session.EventConnected
	EventDisconnected     = session.EventDisconnected
	EventStateChange      = session.EventStateChange
	EventConnectionFailed = session.EventConnectionFailed
	EventMessage          = session.EventMessage
	EventError            = session.EventError

	KindWebSocket = protocol.KindWebSocket
	KindSocketIO  = protocol.KindSocketIO
	KindQUIC      = protocol.KindQUIC

	WildcardChannel = protocol.WildcardChannel
)

var (
	WithClock      = session.WithClock
	WithLogger     = session.WithLogger
	WithTransports = session.WithTransports
)

func DefaultConfig() Config { return session.DefaultConfig() }

// New builds a disconnected session with the bundled adapters.
func New(cfg Config, creds CredentialSource, opts ...Option) *Session {
	return session.New(cfg, creds, opts...)
}

// FromFile loads a YAML or TOML config, overlays .env and the environment,
// and builds a session. A nil creds uses the token from the config.
func FromFile(path string, creds CredentialSource) (*Session, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err = config.LoadEnv(&cfg, ".env"); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	if creds == nil {
		return injector.InitializeSession(cfg), nil
	}
	return injector.InitializeSessionWithCredentials(cfg, creds), nil
}
