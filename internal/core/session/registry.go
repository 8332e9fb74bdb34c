package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
)

// Handler receives messages for one channel. A returned error is logged and
// does not affect other handlers.
type Handler func(msg protocol.Message) error

// Subscription is the handle returned by Session.Subscribe.
type Subscription struct {
	id      string
	channel string
	session *Session
}

func (s *Subscription) ID() string      { return s.id }
func (s *Subscription) Channel() string { return s.channel }

// Cancel removes the handler. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.session.Unsubscribe(s)
}

const registryShards = 16

type handlerEntry struct {
	id      string
	handler Handler
}

type registryShard struct {
	mu       sync.RWMutex
	channels map[string][]handlerEntry
}

// registry maps channel names to ordered handler lists. It is sharded by the
// xxhash of the channel so dispatch on the read goroutine rarely contends
// with Subscribe calls.
type registry struct {
	shards [registryShards]registryShard
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i].channels = make(map[string][]handlerEntry)
	}
	return r
}

func (r *registry) shard(channel string) *registryShard {
	return &r.shards[xxhash.Sum64String(channel)%registryShards]
}

// add appends the handler and reports whether it is the channel's first.
func (r *registry) add(channel string, e handlerEntry) bool {
	sh := r.shard(channel)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	list := sh.channels[channel]
	next := make([]handlerEntry, len(list), len(list)+1)
	copy(next, list)
	sh.channels[channel] = append(next, e)
	return len(list) == 0
}

// remove deletes the handler with id and reports whether it existed and
// whether the channel is now empty.
func (r *registry) remove(channel, id string) (removed, emptied bool) {
	sh := r.shard(channel)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	list := sh.channels[channel]
	for i, e := range list {
		if e.id != id {
			continue
		}
		if len(list) == 1 {
			delete(sh.channels, channel)
			return true, true
		}
		next := make([]handlerEntry, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		sh.channels[channel] = next
		return true, false
	}
	return false, false
}

// handlers returns the channel's handlers in registration order. The slice
// is never mutated in place, so callers may iterate it without a lock.
func (r *registry) handlers(channel string) []handlerEntry {
	sh := r.shard(channel)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.channels[channel]
}

// channels lists the subscribed channels in sorted order.
func (r *registry) channels() []string {
	var out []string
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for ch := range sh.channels {
			out = append(out, ch)
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func (r *registry) count() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.channels)
		sh.mu.RUnlock()
	}
	return n
}

func (r *registry) clear() {
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.Lock()
		sh.channels = make(map[string][]handlerEntry)
		sh.mu.Unlock()
	}
}

// invoke runs h, turning a panic into an error.
func invoke(h Handler, msg protocol.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %q panicked: %v", msg.Channel, r)
		}
	}()
	return h(msg)
}
