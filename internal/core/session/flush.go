package session

import (
	"slices"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

// submitLocked hands msg to the connection writer when connected and queues
// it otherwise. A failed write queues it later, see Session.written.
func (s *Session) submitLocked(msg *QueuedMessage) {
	if !s.writeLocked(outgoing{data: msg.Payload, msg: msg}) {
		s.enqueueLocked(msg)
	}
}

func (s *Session) enqueueLocked(msg *QueuedMessage) {
	if old := s.outbox.push(msg); old != nil {
		s.counters.evicted++
		s.logger.Warn("Outbound queue full, dropped oldest message",
			log.String("message_id", old.ID),
			log.String("kind", old.Kind.String()))
	}
}

// flushLocked runs once per established connection: it announces the
// subscribed channels when configured to, then drains the outbox.
func (s *Session) flushLocked(epoch uint64) {
	if s.cfg.ResubscribeOnConnect {
		s.outbox.dropIntents()
		now := s.clock.Now()
		for _, channel := range s.subs.channels() {
			s.submitLocked(newQueuedMessage(KindSubscribe, protocol.SubscribeFrame(channel), now))
		}
	}
	s.drainLocked(epoch)
}

// drainLocked empties the outbox into release batches. Stale data messages
// are dropped; everything else is released attempts*DrainStagger later, in
// queue order.
func (s *Session) drainLocked(epoch uint64) {
	queued := s.outbox.take()
	if len(queued) == 0 {
		return
	}

	plans, stale := planDrain(queued, s.clock.Now(), s.cfg.StaleAfter, s.cfg.DrainStagger)
	for _, m := range stale {
		s.counters.staleDropped++
		s.logger.Debug("Dropping stale queued message",
			log.String("message_id", m.ID),
			log.Time("created_at", m.CreatedAt))
	}

	s.logger.Debug("Draining outbound queue",
		log.Int("messages", len(queued)-len(stale)),
		log.Int("stale", len(stale)))

	for _, p := range plans {
		b := &batch{msgs: p.msgs}
		b.timer = s.clock.AfterFunc(p.delay, func() { s.releaseBatch(epoch, b) })
		s.batches = append(s.batches, b)
	}
}

// releaseBatch hands a batch to the connection writer. Messages whose write
// fails go back to the outbox for the next connection.
func (s *Session) releaseBatch(epoch uint64, b *batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch || s.state != StateConnected {
		return
	}

	for i, other := range s.batches {
		if other == b {
			s.batches = append(s.batches[:i], s.batches[i+1:]...)
			break
		}
	}

	for _, m := range b.msgs {
		s.submitLocked(m)
	}
}

// requeueLocked puts msgs back at the head of the outbox in creation order.
func (s *Session) requeueLocked(msgs []*QueuedMessage) {
	if len(msgs) == 0 {
		return
	}
	slices.SortStableFunc(msgs, func(a, b *QueuedMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	for range s.outbox.requeue(msgs) {
		s.counters.evicted++
	}
}
