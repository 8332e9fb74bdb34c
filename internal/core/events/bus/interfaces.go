package bus

import "time"

// Emitter is an in-process, name-keyed event emitter.
//
// Key characteristics:
// - Ordered fan-out: handlers run in registration order for a given event name.
// - Synchronous Emit: handlers run in the caller goroutine; their errors are
//   joined and returned.
// - Ordered asynchronous EmitAsync: events are queued and delivered one by one
//   on a background goroutine in the order they were queued.
// - Isolation: a panicking handler is recovered and reported as an error; the
//   remaining handlers still run.
//
// All methods are safe for concurrent use. Handlers may call back into the
// Emitter.
type Emitter interface {
	// On registers handler for name and returns its Subscription.
	On(name string, handler Handler) Subscription
	// Once registers a handler that is cancelled after its first delivery.
	Once(name string, handler Handler) Subscription
	// Off cancels the subscription. Nil is accepted and ignored.
	Off(sub Subscription) error
	// Emit delivers synchronously to every handler registered for name.
	Emit(name string, data any) error
	// EmitAsync queues the event for ordered background delivery.
	EmitAsync(name string, data any)
	// Listeners reports how many handlers are registered for name.
	Listeners(name string) int
	// RemoveAll drops every handler for name, or every handler when name is empty.
	RemoveAll(name string)
}

// Event is what handlers receive.
type Event struct {
	Name      string
	Data      any
	Timestamp time.Time
}

// Handler is a user callback invoked per delivered event.
type Handler func(event Event) error

// Subscription represents a registered handler bound to an event name.
type Subscription interface {
	// ID is a unique identifier for this subscription.
	ID() string
	// EventName returns the event name this subscription listens to.
	EventName() string
	// IsActive reports whether this subscription is still registered.
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// ErrorReporter receives handler failures from asynchronous delivery, which
// has no caller to return them to.
type ErrorReporter func(event Event, err error)
