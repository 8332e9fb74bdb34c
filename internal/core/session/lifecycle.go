package session

import (
	"github.com/jonboulle/clockwork"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

// listener binds adapter callbacks to the epoch of the attempt that created
// the transport.
type listener struct {
	s     *Session
	epoch uint64
}

func (l listener) OnOpen()                        { l.s.handleOpen(l.epoch) }
func (l listener) OnMessage(msg protocol.Message) { l.s.handleMessage(l.epoch, msg) }
func (l listener) OnClose(info protocol.CloseInfo) {
	l.s.handleEnd(l.epoch, &CloseError{Info: info}, info.Clean)
}
func (l listener) OnError(err error) { l.s.handleEnd(l.epoch, err, false) }

// beginAttemptLocked opens a fresh transport and moves to connecting. On
// error nothing changed.
func (s *Session) beginAttemptLocked() error {
	token := s.creds.Token()
	if token == "" {
		return ErrNoCredential
	}
	tr, err := s.transports.New(s.cfg.Kind)
	if err != nil {
		return err
	}

	s.epoch++
	epoch := s.epoch
	s.transport = tr
	s.handshakeTimer = s.clock.AfterFunc(s.cfg.HandshakeTimeout, func() {
		s.handshakeExpired(epoch)
	})
	s.setStateLocked(StateConnecting)

	s.logger.Info("Connecting", log.String("url", s.cfg.URL), log.Int("attempt", s.attempts))
	tr.Open(protocol.Target{
		URL:       s.cfg.URL,
		Token:     token,
		Namespace: s.cfg.Namespace,
		Path:      s.cfg.Path,
	}, listener{s: s, epoch: epoch})
	return nil
}

func (s *Session) handleOpen(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateConnecting {
		return
	}

	s.stopTimer(&s.handshakeTimer)
	now := s.clock.Now()
	s.attempts = 0
	s.connectedAt = now
	s.durationFrom = now
	s.lastPongAt = now
	s.writer = newConnWriter(s, s.transport, epoch)
	s.armHeartbeatLocked(epoch)
	s.setStateLocked(StateConnected)
	s.events.EmitAsync(EventConnected, nil)
	s.logger.Info("Connected", log.String("url", s.cfg.URL))

	s.resolveWaitersLocked(nil)
	s.flushLocked(epoch)
}

func (s *Session) handleMessage(epoch uint64, msg protocol.Message) {
	s.mu.Lock()
	if epoch != s.epoch || s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	msg.ReceivedAt = now
	s.counters.received++

	switch {
	case msg.IsPong():
		s.lastPongAt = now
		s.mu.Unlock()
		return
	case msg.IsPing():
		s.writeLocked(outgoing{data: protocol.PongFrame(now)})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.dispatch(msg)
	s.events.EmitAsync(EventMessage, msg)
}

// dispatch runs the channel's handlers, then the wildcard handlers. A
// message addressed to the wildcard channel itself is delivered once.
func (s *Session) dispatch(msg protocol.Message) {
	s.deliver(msg, s.subs.handlers(msg.Channel))
	if msg.Channel != protocol.WildcardChannel {
		s.deliver(msg, s.subs.handlers(protocol.WildcardChannel))
	}
}

func (s *Session) deliver(msg protocol.Message, entries []handlerEntry) {
	for _, e := range entries {
		if err := invoke(e.handler, msg); err != nil {
			s.logger.Error("Subscriber failed",
				log.String("channel", msg.Channel),
				log.String("subscription_id", e.id),
				log.Error(err))
		}
	}
}

func (s *Session) handleEnd(epoch uint64, cause error, clean bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return
	}
	if s.state != StateConnecting && s.state != StateConnected {
		return
	}
	s.dropLocked(cause, clean)
}

func (s *Session) handshakeExpired(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateConnecting {
		return
	}
	s.logger.Warn("Handshake timed out", log.Duration("timeout", s.cfg.HandshakeTimeout))
	s.dropLocked(ErrHandshakeTimeout, false)
}

// dropLocked ends the current connection or attempt because of cause. A clean
// close of an established connection leaves the session disconnected;
// anything else reconnects when enabled.
func (s *Session) dropLocked(cause error, clean bool) {
	from := s.state
	s.teardownLocked(true)

	if from == StateConnected {
		s.events.EmitAsync(EventDisconnected, cause)
	}

	if clean && from == StateConnected {
		s.logger.Info("Server closed the connection", log.Error(cause))
		s.setStateLocked(StateDisconnected)
		return
	}

	s.logger.Warn("Connection lost", log.String("state", from.String()), log.Error(cause))
	s.events.EmitAsync(EventError, TransportError{Kind: protocol.Classify(cause), Err: cause})

	if !s.cfg.AutoReconnect {
		s.setStateLocked(StateDisconnected)
		s.events.EmitAsync(EventConnectionFailed, cause)
		s.resolveWaitersLocked(cause)
		return
	}
	s.scheduleReconnectLocked(cause)
}

// teardownLocked stops the connection timers and writer, closes the
// transport and moves the epoch on. With requeue, messages that were handed
// to the writer or drained but not yet sent go back to the head of the
// outbox.
func (s *Session) teardownLocked(requeue bool) {
	s.epoch++
	s.stopTimer(&s.handshakeTimer)
	s.stopTimer(&s.heartbeatTimer)

	pending := s.stopWriterLocked(requeue)
	for _, b := range s.batches {
		b.timer.Stop()
		pending = append(pending, b.msgs...)
	}
	s.batches = nil
	if requeue {
		s.requeueLocked(pending)
	}

	if s.state == StateConnected {
		s.counters.connectedFor += s.clock.Since(s.durationFrom)
	}

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.logger.Debug("Transport close failed", log.Error(err))
		}
		s.transport = nil
	}
}

func (s *Session) scheduleReconnectLocked(cause error) {
	if s.attempts >= s.cfg.MaxReconnectAttempts {
		s.logger.Error("Reconnect attempts exhausted",
			log.Int("attempts", s.attempts),
			log.Error(cause))
		s.setStateLocked(StateDisconnected)
		s.events.EmitAsync(EventConnectionFailed, cause)
		s.resolveWaitersLocked(ErrReconnectExhausted)
		return
	}

	s.attempts++
	delay := s.cfg.Backoff.Delay(s.attempts)
	epoch := s.epoch
	s.reconnectTimer = s.clock.AfterFunc(delay, func() { s.reconnect(epoch) })
	s.setStateLocked(StateReconnecting)
	s.logger.Info("Reconnect scheduled",
		log.Int("attempt", s.attempts),
		log.Int("max_attempts", s.cfg.MaxReconnectAttempts),
		log.Duration("delay", delay))
}

func (s *Session) reconnect(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateReconnecting {
		return
	}
	s.reconnectTimer = nil
	s.counters.reconnects++
	if err := s.beginAttemptLocked(); err != nil {
		s.logger.Warn("Reconnect attempt failed", log.Error(err))
		s.scheduleReconnectLocked(err)
	}
}

func (s *Session) setStateLocked(to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	s.events.EmitAsync(EventStateChange, StateChange{From: from, To: to})
	s.logger.Debug("State changed", log.String("from", from.String()), log.String("to", to.String()))
}

func (s *Session) resolveWaitersLocked(err error) {
	for _, w := range s.waiters {
		w <- err
	}
	s.waiters = nil
}

func (s *Session) stopTimer(t *clockwork.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
