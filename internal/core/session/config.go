package session

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

// Config holds the tunables of a Session. Start from DefaultConfig; zero
// durations and sizes are replaced by their defaults.
type Config struct {
	// URL of the realtime endpoint. Empty disables the session.
	URL       string
	Kind      protocol.Kind
	Namespace string
	Path      string

	AutoReconnect        bool
	MaxReconnectAttempts int
	Backoff              Backoff

	HeartbeatInterval time.Duration
	HandshakeTimeout  time.Duration

	MaxQueueSize int
	// StaleAfter drops queued data messages older than this at drain time.
	StaleAfter time.Duration
	// DrainStagger is multiplied by a message's attempt count to delay its
	// release when the queue drains.
	DrainStagger time.Duration

	// ResubscribeOnConnect announces every registered channel on connect
	// instead of replaying queued subscribe intents.
	ResubscribeOnConnect bool
}

const (
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultMaxQueueSize         = 100
	DefaultStaleAfter           = 5 * time.Minute
	DefaultDrainStagger         = 100 * time.Millisecond
)

func DefaultConfig() Config {
	return Config{
		Kind:                 protocol.KindWebSocket,
		AutoReconnect:        true,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		Backoff:              DefaultBackoff(),
		HeartbeatInterval:    DefaultHeartbeatInterval,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		MaxQueueSize:         DefaultMaxQueueSize,
		StaleAfter:           DefaultStaleAfter,
		DrainStagger:         DefaultDrainStagger,
		ResubscribeOnConnect: true,
	}
}

func (c Config) withDefaults() Config {
	if c.Kind == "" {
		c.Kind = protocol.KindWebSocket
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	c.Backoff = c.Backoff.withDefaults()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = DefaultMaxQueueSize
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = DefaultStaleAfter
	}
	if c.DrainStagger <= 0 {
		c.DrainStagger = DefaultDrainStagger
	}
	return c
}

// Option customises a Session.
type Option func(*Session)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

func WithLogger(logger log.Log) Option {
	return func(s *Session) { s.logger = logger }
}

// WithTransports replaces the adapter registry built by DefaultTransports.
func WithTransports(registry *protocol.Registry) Option {
	return func(s *Session) { s.transports = registry }
}
