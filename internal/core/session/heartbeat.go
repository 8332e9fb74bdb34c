package session

import (
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

// armHeartbeatLocked schedules the next liveness check. The timer is armed
// for as long as the session is connected.
func (s *Session) armHeartbeatLocked(epoch uint64) {
	s.heartbeatTimer = s.clock.AfterFunc(s.cfg.HeartbeatInterval, func() {
		s.heartbeat(epoch)
	})
}

// heartbeat declares the connection dead when no pong arrived for two
// intervals, and sends a ping otherwise.
func (s *Session) heartbeat(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateConnected {
		return
	}

	now := s.clock.Now()
	silence := now.Sub(s.lastPongAt)
	if silence >= 2*s.cfg.HeartbeatInterval {
		s.logger.Warn("No pong received, connection presumed dead", log.Duration("silence", silence))
		s.dropLocked(ErrHeartbeatTimeout, false)
		return
	}

	s.armHeartbeatLocked(epoch)
	s.writeLocked(outgoing{data: protocol.PingFrame(now)})
}
