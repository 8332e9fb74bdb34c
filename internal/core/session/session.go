// Package session implements a reconnecting realtime session over a
// pluggable wire protocol. A Session keeps one logical connection alive,
// queues outbound frames while offline, monitors liveness with an
// application-level heartbeat and fans inbound messages out to per-channel
// subscribers.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/events/bus"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"golang.org/x/sync/singleflight"
)

// Session is safe for concurrent use.
type Session struct {
	cfg        Config
	creds      CredentialSource
	transports *protocol.Registry
	clock      clockwork.Clock
	logger     log.Log
	events     bus.Emitter
	subs       *registry
	flight     singleflight.Group

	mu sync.Mutex
	// epoch changes whenever the current transport is replaced or torn down.
	// Timers and adapter callbacks carry the epoch they were created in and
	// are ignored once it moved on.
	epoch          uint64
	state          State
	transport      protocol.Transport
	writer         *connWriter
	attempts       int
	lastPongAt     time.Time
	connectedAt    time.Time
	// durationFrom is where the running connection's share of
	// counters.connectedFor starts.
	durationFrom   time.Time
	outbox         *outbox
	batches        []*batch
	handshakeTimer clockwork.Timer
	heartbeatTimer clockwork.Timer
	reconnectTimer clockwork.Timer
	waiters        []chan error
	counters       counters
}

// New builds a disconnected Session. The credential source is consulted on
// every connection attempt.
func New(cfg Config, creds CredentialSource, opts ...Option) *Session {
	s := &Session{
		cfg:   cfg.withDefaults(),
		creds: creds,
		subs:  newRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.creds == nil {
		s.creds = StaticToken("")
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	s.logger = s.logger.With(log.String("component", "realtime"), log.String("transport", s.cfg.Kind.String()))
	if s.transports == nil {
		s.transports = DefaultTransports(TransportOptions{
			HandshakeTimeout: s.cfg.HandshakeTimeout,
			Logger:           s.logger,
		})
	}
	s.outbox = newOutbox(s.cfg.MaxQueueSize)
	s.events = bus.New(func(ev bus.Event, err error) {
		s.logger.Warn("Event handler failed", log.String("event", ev.Name), log.Error(err))
	})
	return s
}

// Enabled reports whether an endpoint is configured.
func (s *Session) Enabled() bool {
	return s.cfg.URL != ""
}

// Connect opens the connection and waits until it is established.
//
// Concurrent calls share one attempt. A session without an endpoint stays
// disconnected and returns nil. Starting from disconnected without a
// credential returns ErrNoCredential. Calling Connect while a reconnect is
// scheduled skips the remaining backoff. The attempt continues in the
// background when ctx ends first.
func (s *Session) Connect(ctx context.Context) error {
	if !s.Enabled() {
		s.logger.Info("Realtime endpoint not configured, staying disconnected")
		return nil
	}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case StateConnected:
		return nil
	case StateDisconnected:
		if s.creds.Token() == "" {
			return ErrNoCredential
		}
	}

	result := s.flight.DoChan("connect", func() (any, error) {
		return nil, s.connect()
	})
	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) connect() error {
	done := make(chan error, 1)

	s.mu.Lock()
	switch s.state {
	case StateConnected:
		s.mu.Unlock()
		return nil
	case StateConnecting:
		s.waiters = append(s.waiters, done)
	case StateReconnecting:
		s.stopTimer(&s.reconnectTimer)
		s.waiters = append(s.waiters, done)
		if err := s.beginAttemptLocked(); err != nil {
			s.logger.Warn("Immediate reconnect failed", log.Error(err))
			s.scheduleReconnectLocked(err)
		}
	case StateDisconnected:
		s.attempts = 0
		if err := s.beginAttemptLocked(); err != nil {
			s.mu.Unlock()
			return err
		}
		s.waiters = append(s.waiters, done)
	}
	s.mu.Unlock()

	return <-done
}

// Disconnect closes the connection with a normal closure, stops every timer,
// drops queued messages and subscriptions, and fails pending Connect calls
// with ErrSessionClosed. Nothing changes state after Disconnect returns
// until the next Connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.state
	s.teardownLocked(false)
	s.stopTimer(&s.reconnectTimer)
	s.outbox.clear()
	s.subs.clear()
	s.resolveWaitersLocked(ErrSessionClosed)

	if from == StateDisconnected {
		return
	}
	s.setStateLocked(StateDisconnected)
	s.events.EmitAsync(EventDisconnected, nil)
	s.logger.Info("Realtime session disconnected")
}

// Reset disconnects and zeroes every counter.
func (s *Session) Reset() {
	s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = counters{}
	s.attempts = 0
}

// Send transmits payload as JSON. While offline, or when the write fails,
// the frame is queued and flushed on the next connect. Send never blocks on
// a connection attempt or on the network. Pass a json.RawMessage to send
// pre-encoded JSON.
func (s *Session) Send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Dropping message that cannot be encoded", log.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitLocked(newQueuedMessage(KindData, data, s.clock.Now()))
}

// Subscribe registers handler for channel. Use protocol.WildcardChannel to
// receive every message. The first handler of a channel announces it to the
// server.
func (s *Session) Subscribe(channel string, handler Handler) *Subscription {
	if channel == "" {
		channel = protocol.DefaultChannel
	}
	sub := &Subscription{id: uuid.NewString(), channel: channel, session: s}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs.add(channel, handlerEntry{id: sub.id, handler: handler}) {
		s.submitLocked(newQueuedMessage(KindSubscribe, protocol.SubscribeFrame(channel), s.clock.Now()))
	}
	s.logger.Debug("Subscribed", log.String("channel", channel), log.String("subscription_id", sub.id))
	return sub
}

// Unsubscribe removes the subscription. The last handler of a channel
// withdraws it from the server.
func (s *Session) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed, emptied := s.subs.remove(sub.channel, sub.id)
	if !removed {
		return
	}
	if emptied {
		s.submitLocked(newQueuedMessage(KindUnsubscribe, protocol.UnsubscribeFrame(sub.channel), s.clock.Now()))
	}
	s.logger.Debug("Unsubscribed", log.String("channel", sub.channel), log.String("subscription_id", sub.id))
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Metrics{
		State:              s.state,
		MessagesSent:       s.counters.sent,
		MessagesReceived:   s.counters.received,
		Reconnects:         s.counters.reconnects,
		ReconnectAttempts:  s.attempts,
		QueueDepth:         s.outbox.len(),
		StaleDropped:       s.counters.staleDropped,
		Evicted:            s.counters.evicted,
		ActiveChannels:     s.subs.count(),
		ConnectionDuration: s.counters.connectedFor,
		LastConnectedAt:    s.connectedAt,
	}
	if s.state == StateConnected {
		m.ConnectionDuration += s.clock.Since(s.durationFrom)
	}
	return m
}

// ResetMetrics zeroes the counters without touching the connection.
func (s *Session) ResetMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters = counters{}
	s.durationFrom = s.clock.Now()
}

// Pending returns a copy of the queued messages, oldest first.
func (s *Session) Pending() []QueuedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	queued := s.outbox.snapshot()
	out := make([]QueuedMessage, len(queued))
	for i, m := range queued {
		out[i] = *m
	}
	return out
}

// On registers handler for a lifecycle event. Lifecycle events are delivered
// asynchronously, one at a time, in the order they happened.
func (s *Session) On(event string, handler bus.Handler) bus.Subscription {
	return s.events.On(event, handler)
}

func (s *Session) Once(event string, handler bus.Handler) bus.Subscription {
	return s.events.Once(event, handler)
}

func (s *Session) Off(sub bus.Subscription) error {
	return s.events.Off(sub)
}
