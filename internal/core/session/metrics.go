package session

import "time"

// Metrics is a point-in-time snapshot of a Session's counters.
type Metrics struct {
	State State
	// MessagesSent counts every frame the session wrote, including heartbeat
	// pings and subscription intents.
	MessagesSent uint64
	// MessagesReceived counts every inbound frame, including pongs.
	MessagesReceived uint64
	// Reconnects counts fired reconnect timers.
	Reconnects        uint64
	ReconnectAttempts int
	QueueDepth        int
	// StaleDropped counts queued messages discarded for age.
	StaleDropped uint64
	// Evicted counts queued messages discarded because the queue was full.
	Evicted        uint64
	ActiveChannels int
	// ConnectionDuration is the total time spent connected, including the
	// current connection.
	ConnectionDuration time.Duration
	LastConnectedAt    time.Time
}

type counters struct {
	sent         uint64
	received     uint64
	reconnects   uint64
	staleDropped uint64
	evicted      uint64
	connectedFor time.Duration
}
