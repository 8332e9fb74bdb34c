package session

import (
	"encoding/json"
	"sync"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

// outgoing is one frame handed to the connection writer. msg is nil for
// heartbeat frames, which are never requeued.
type outgoing struct {
	data json.RawMessage
	msg  *QueuedMessage
}

// connWriter owns the writes of one established connection. Frames are
// written in the order they were handed over, on the writer goroutine, so
// the session mutex is never held across network I/O.
type connWriter struct {
	s     *Session
	tr    protocol.Transport
	epoch uint64

	mu      sync.Mutex
	pending []outgoing
	stopped bool
	// keep requeues a frame whose write fails after the writer stopped.
	keep bool
	wake chan struct{}
}

func newConnWriter(s *Session, tr protocol.Transport, epoch uint64) *connWriter {
	w := &connWriter{
		s:     s,
		tr:    tr,
		epoch: epoch,
		wake:  make(chan struct{}, 1),
	}
	go w.run()
	return w
}

// enqueue hands out to the writer and reports whether it was accepted.
func (w *connWriter) enqueue(out outgoing) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return false
	}
	w.pending = append(w.pending, out)
	w.mu.Unlock()

	w.signal()
	return true
}

// stop ends the writer and returns the frames it had not started writing,
// oldest first. A write already in progress completes through
// Session.written.
func (w *connWriter) stop(keep bool) []outgoing {
	w.mu.Lock()
	w.stopped = true
	w.keep = keep
	rest := w.pending
	w.pending = nil
	w.mu.Unlock()

	w.signal()
	return rest
}

func (w *connWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *connWriter) run() {
	for {
		w.mu.Lock()
		if w.stopped {
			w.mu.Unlock()
			return
		}
		if len(w.pending) == 0 {
			w.mu.Unlock()
			<-w.wake
			continue
		}
		out := w.pending[0]
		w.pending[0] = outgoing{}
		w.pending = w.pending[1:]
		w.mu.Unlock()

		err := w.tr.Send(out.data)
		w.s.written(w, out, err)
	}
}

func (w *connWriter) keepsFailed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keep
}

// writeLocked hands out to the connection writer. It reports false when no
// connection is established.
func (s *Session) writeLocked(out outgoing) bool {
	if s.state != StateConnected || s.writer == nil {
		return false
	}
	return s.writer.enqueue(out)
}

// stopWriterLocked stops the connection writer. With requeue, its unwritten
// messages go back to the outbox; heartbeat frames are dropped.
func (s *Session) stopWriterLocked(requeue bool) []*QueuedMessage {
	if s.writer == nil {
		return nil
	}
	rest := s.writer.stop(requeue)
	s.writer = nil
	if !requeue {
		return nil
	}

	var msgs []*QueuedMessage
	for _, out := range rest {
		if out.msg != nil {
			msgs = append(msgs, out.msg)
		}
	}
	return msgs
}

// written records the outcome of one write made by w.
func (s *Session) written(w *connWriter, out outgoing, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		s.counters.sent++
		if out.msg != nil {
			out.msg.SentAt = s.clock.Now()
		}
		return
	}

	if out.msg == nil {
		s.logger.Warn("Failed to write control frame", log.Error(err))
		return
	}

	switch {
	case w.epoch == s.epoch:
		s.logger.Warn("Send failed, queueing", log.String("message_id", out.msg.ID), log.Error(err))
		s.enqueueLocked(out.msg)
	case w.keepsFailed():
		// The connection ended while this frame was on the wire. It is older
		// than anything requeued by the teardown.
		for range s.outbox.requeue([]*QueuedMessage{out.msg}) {
			s.counters.evicted++
		}
	default:
		s.logger.Debug("Dropping frame of a closed session", log.String("message_id", out.msg.ID))
	}
}
