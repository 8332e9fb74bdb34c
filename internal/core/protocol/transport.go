package protocol

import "encoding/json"

// Listener receives the four lifecycle events every adapter produces.
//
// An adapter calls OnOpen at most once, then OnMessage for every inbound
// frame in receive order, and finally exactly one of OnClose or OnError.
// Dial and handshake failures are reported through OnError; a connection
// that was open and then ended is reported through OnClose. No callback
// follows a call to Transport.Close.
type Listener interface {
	OnOpen()
	OnMessage(msg Message)
	OnClose(info CloseInfo)
	OnError(err error)
}

// Transport is one physical connection attempt. A Transport is single-use:
// after it ends, the session creates a new one for the next attempt.
type Transport interface {
	Kind() Kind
	// Open starts connecting and returns immediately. Progress is reported
	// to listener.
	Open(target Target, listener Listener)
	// Send writes one JSON application frame. It fails with ErrNotOpen
	// before OnOpen and after the transport ended.
	Send(data json.RawMessage) error
	// Close ends the connection with a normal closure. It is safe to call
	// at any time and more than once.
	Close() error
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Open    func()
	Message func(Message)
	Closed  func(CloseInfo)
	Error   func(error)
}

func (l ListenerFuncs) OnOpen() {
	if l.Open != nil {
		l.Open()
	}
}

func (l ListenerFuncs) OnMessage(msg Message) {
	if l.Message != nil {
		l.Message(msg)
	}
}

func (l ListenerFuncs) OnClose(info CloseInfo) {
	if l.Closed != nil {
		l.Closed(info)
	}
}

func (l ListenerFuncs) OnError(err error) {
	if l.Error != nil {
		l.Error(err)
	}
}
