package session

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/jonmax1987/omnix-ai-professional-sub006/pkg/sequence"
)

// MessageKind separates application data from subscription intents in the
// outbox.
type MessageKind int

const (
	KindData MessageKind = iota
	KindSubscribe
	KindUnsubscribe
)

func (k MessageKind) String() string {
	switch k {
	case KindData:
		return "data"
	case KindSubscribe:
		return "subscribe"
	case KindUnsubscribe:
		return "unsubscribe"
	default:
		return "unknown"
	}
}

// QueuedMessage is an outbound frame waiting for a connection.
type QueuedMessage struct {
	ID        string
	Kind      MessageKind
	CreatedAt time.Time
	Payload   json.RawMessage
	Attempts  int
	// SentAt is zero until the frame was written.
	SentAt time.Time
}

func newQueuedMessage(kind MessageKind, payload json.RawMessage, now time.Time) *QueuedMessage {
	return &QueuedMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: now,
		Payload:   payload,
	}
}

// stale reports a data message older than maxAge. Intents never go stale.
func (m *QueuedMessage) stale(now time.Time, maxAge time.Duration) bool {
	return m.Kind == KindData && now.Sub(m.CreatedAt) > maxAge
}

// outbox is the bounded FIFO of unsent frames. It is guarded by the session
// mutex.
type outbox struct {
	ring *sequence.Ring[*QueuedMessage]
}

func newOutbox(capacity int) *outbox {
	return &outbox{ring: sequence.NewRing[*QueuedMessage](capacity)}
}

// push appends msg and returns the message evicted to make room, if any.
func (o *outbox) push(msg *QueuedMessage) *QueuedMessage {
	old, evicted := o.ring.PushBack(msg)
	if !evicted {
		return nil
	}
	return old
}

// requeue puts msgs back at the head in their original order. Messages that
// do not fit are returned, oldest first.
func (o *outbox) requeue(msgs []*QueuedMessage) []*QueuedMessage {
	var dropped []*QueuedMessage
	for i := len(msgs) - 1; i >= 0; i-- {
		if old, evicted := o.ring.PushFront(msgs[i]); evicted {
			dropped = append([]*QueuedMessage{old}, dropped...)
		}
	}
	return dropped
}

// take empties the outbox, oldest first.
func (o *outbox) take() []*QueuedMessage {
	return o.ring.Drain()
}

// dropIntents removes queued subscribe and unsubscribe intents.
func (o *outbox) dropIntents() int {
	all := o.ring.Drain()
	dropped := 0
	for _, m := range all {
		if m.Kind != KindData {
			dropped++
			continue
		}
		o.ring.PushBack(m)
	}
	return dropped
}

func (o *outbox) snapshot() []*QueuedMessage { return o.ring.Snapshot() }

func (o *outbox) clear() { o.ring.Clear() }

func (o *outbox) len() int { return o.ring.Len() }

// batch is a group of drained messages released by one timer.
type batch struct {
	msgs  []*QueuedMessage
	timer clockwork.Timer
}

// planDrain assigns each message its release delay of attempts*stagger, made
// non-decreasing so release order matches queue order, and groups runs of
// equal delay. Stale messages are returned separately. Attempts are
// incremented on every kept message.
func planDrain(msgs []*QueuedMessage, now time.Time, maxAge, stagger time.Duration) (plans []drainPlan, stale []*QueuedMessage) {
	var floor time.Duration
	for _, m := range msgs {
		if m.stale(now, maxAge) {
			stale = append(stale, m)
			continue
		}
		m.Attempts++
		delay := time.Duration(m.Attempts) * stagger
		if delay < floor {
			delay = floor
		}
		floor = delay

		if n := len(plans); n > 0 && plans[n-1].delay == delay {
			plans[n-1].msgs = append(plans[n-1].msgs, m)
			continue
		}
		plans = append(plans, drainPlan{delay: delay, msgs: []*QueuedMessage{m}})
	}
	return plans, stale
}

type drainPlan struct {
	delay time.Duration
	msgs  []*QueuedMessage
}
