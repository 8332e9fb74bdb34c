package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// subscription implements Subscription.
type subscription struct {
	id      string
	name    string
	handler Handler
	once    bool
	active  atomic.Bool
	cancel  func()
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) EventName() string { return s.name }
func (s *subscription) IsActive() bool    { return s.active.Load() }
func (s *subscription) Cancel() error {
	if s.active.CompareAndSwap(true, false) && s.cancel != nil {
		s.cancel()
	}
	return nil
}

// emitter is the default Emitter.
type emitter struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription

	queueMu  sync.Mutex
	queue    []Event
	draining bool
	report   ErrorReporter
}

// New creates an Emitter. report may be nil.
func New(report ErrorReporter) Emitter {
	return &emitter{
		handlers: make(map[string][]*subscription),
		report:   report,
	}
}

func (e *emitter) On(name string, handler Handler) Subscription {
	return e.add(name, handler, false)
}

func (e *emitter) Once(name string, handler Handler) Subscription {
	return e.add(name, handler, true)
}

func (e *emitter) add(name string, handler Handler, once bool) Subscription {
	s := &subscription{id: uuid.NewString(), name: name, handler: handler, once: once}
	s.active.Store(true)
	s.cancel = func() { e.remove(name, s.id) }

	e.mu.Lock()
	e.handlers[name] = append(e.handlers[name], s)
	e.mu.Unlock()
	return s
}

func (e *emitter) remove(name, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	list := e.handlers[name]
	for i, s := range list {
		if s.id == id {
			next := make([]*subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(e.handlers, name)
			} else {
				e.handlers[name] = next
			}
			return
		}
	}
}

func (e *emitter) Off(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (e *emitter) Emit(name string, data any) error {
	return e.deliver(Event{Name: name, Data: data, Timestamp: time.Now()})
}

func (e *emitter) EmitAsync(name string, data any) {
	ev := Event{Name: name, Data: data, Timestamp: time.Now()}

	e.queueMu.Lock()
	e.queue = append(e.queue, ev)
	if e.draining {
		e.queueMu.Unlock()
		return
	}
	e.draining = true
	e.queueMu.Unlock()

	go e.drain()
}

// drain delivers queued events until the queue is empty, then exits.
func (e *emitter) drain() {
	for {
		e.queueMu.Lock()
		if len(e.queue) == 0 {
			e.draining = false
			e.queueMu.Unlock()
			return
		}
		ev := e.queue[0]
		e.queue[0] = Event{}
		e.queue = e.queue[1:]
		e.queueMu.Unlock()

		if err := e.deliver(ev); err != nil && e.report != nil {
			e.report(ev, err)
		}
	}
}

func (e *emitter) deliver(ev Event) error {
	e.mu.RLock()
	list := e.handlers[ev.Name]
	e.mu.RUnlock()

	var all error
	for _, s := range list {
		if !s.IsActive() {
			continue
		}
		if s.once {
			_ = s.Cancel()
		}
		if err := invoke(s.handler, ev); err != nil {
			all = errors.Join(all, err)
		}
	}
	return all
}

func invoke(h Handler, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler for %q panicked: %v", ev.Name, r)
		}
	}()
	return h(ev)
}

func (e *emitter) Listeners(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.handlers[name])
}

func (e *emitter) RemoveAll(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if name == "" {
		for _, list := range e.handlers {
			for _, s := range list {
				s.active.Store(false)
			}
		}
		e.handlers = make(map[string][]*subscription)
		return
	}
	for _, s := range e.handlers[name] {
		s.active.Store(false)
	}
	delete(e.handlers, name)
}
