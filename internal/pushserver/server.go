// Package pushserver is a development realtime server. It speaks the raw
// WebSocket dialect on /ws and Socket.IO (Engine.IO v4) on /socket.io/,
// answers heartbeat pings, honours subscribe and unsubscribe intents and
// publishes JSON envelopes to subscribed clients.
package pushserver

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol/socketio"
	"github.com/jonmax1987/omnix-ai-professional-sub006/pkg/concurrent"
	"github.com/jonmax1987/omnix-ai-professional-sub006/pkg/sequence"
)

// fanOutLimit bounds concurrent client writes during Publish and Kick.
const fanOutLimit = 64

// Config holds server configuration
type Config struct {
	// Token clients must present. Empty accepts every client.
	Token      string
	MaxClients int

	WriteTimeout time.Duration
	// Engine.IO heartbeat announced to Socket.IO clients.
	PingInterval time.Duration
	PingTimeout  time.Duration
	// IdleTimeout drops clients that sent nothing for this long. Zero keeps
	// idle clients.
	IdleTimeout time.Duration

	// InboxSize bounds the history of client data frames kept for Received.
	InboxSize int
	// DemoInterval publishes sample events when positive.
	DemoInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxClients:   10_000,
		WriteTimeout: 10 * time.Second,
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		IdleTimeout:  2 * time.Minute,
		InboxSize:    1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxClients <= 0 {
		c.MaxClients = d.MaxClients
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	return c
}

// Inbound is a data frame a client sent.
type Inbound struct {
	ClientID string
	Dialect  Dialect
	Message  protocol.Message
}

// Stats contains server statistics
type Stats struct {
	Clients   int64 `json:"clients"`
	Published int64 `json:"published"`
	Delivered int64 `json:"delivered"`
	Received  int64 `json:"received"`
	Running   bool  `json:"running"`
}

type Server struct {
	config   Config
	logger   log.Log
	upgrader websocket.Upgrader
	router   chi.Router

	clients     sync.Map // map[string]*client
	clientCount atomic.Int64

	published atomic.Int64
	delivered atomic.Int64
	received  atomic.Int64

	inboxMu sync.Mutex
	inbox   *sequence.Ring[Inbound]

	running int32 // atomic bool
	closed  int32 // atomic bool

	httpServer  *http.Server
	listener    net.Listener
	workerGroup sync.WaitGroup
	stopChan    chan struct{}
}

func New(config Config, logger log.Log) *Server {
	config = config.withDefaults()
	if logger == nil {
		logger = log.Nop()
	}

	s := &Server{
		config: config,
		logger: logger.With(log.String("component", "pushserver")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		inbox:    sequence.NewRing[Inbound](config.InboxSize),
		stopChan: make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer, requestLogger(s.logger))
	r.With(s.requireQueryToken).Get("/ws", s.handleRaw)
	r.Get(socketio.DefaultPath, s.handleSocketIO)
	r.Get("/socket.io", s.handleSocketIO)
	r.Get("/healthz", s.handleHealth)
	s.router = r

	return s
}

// Handler exposes the routes, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on addr and serves until Stop.
func (s *Server) Start(addr string) error {
	if atomic.LoadInt32(&s.closed) == 1 {
		return ErrServerClosed
	}
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return ErrServerAlreadyRunning
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		atomic.StoreInt32(&s.running, 0)
		s.logger.Error("Failed to listen", log.String("addr", addr), log.Error(err))
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: s.router, ReadHeaderTimeout: 10 * time.Second}

	s.workerGroup.Add(1)
	go func() {
		defer s.workerGroup.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", log.Error(err))
		}
	}()

	if s.config.DemoInterval > 0 {
		s.workerGroup.Add(1)
		go func() {
			defer s.workerGroup.Done()
			s.runDemo(s.config.DemoInterval)
		}()
	}

	if s.config.IdleTimeout > 0 {
		s.workerGroup.Add(1)
		go func() {
			defer s.workerGroup.Done()
			s.runSweep(s.config.IdleTimeout)
		}()
	}

	s.logger.Info("Server listening", log.String("addr", listener.Addr().String()))
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes every client connection normally and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return ErrServerNotRunning
	}
	s.logger.Info("Stopping server")

	close(s.stopChan)
	err := s.httpServer.Shutdown(ctx)
	s.Kick(true)
	s.workerGroup.Wait()

	s.logger.Info("Server stopped")
	return err
}

// Close stops the server if needed and makes it unusable.
func (s *Server) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if atomic.LoadInt32(&s.running) == 1 {
		return s.Stop(context.Background())
	}
	return nil
}

// Publish sends payload on channel to every client subscribed to it or to
// the wildcard, and returns how many clients it reached.
func (s *Server) Publish(channel string, payload any) (int, error) {
	if channel == "" {
		return 0, ErrEmptyChannel
	}
	data, err := json.Marshal(protocol.Envelope{Channel: channel, Payload: payload})
	if err != nil {
		return 0, err
	}
	s.published.Add(1)

	wanted := concurrent.Filter(s.each(), func(c *client) bool { return c.wants(channel) })
	delivered := concurrent.Count(wanted, fanOutLimit, func(c *client) error {
		return c.send(data)
	}, func(c *client, err error) {
		s.logger.Warn("Failed to push message",
			log.String("client_id", c.id),
			log.String("channel", channel),
			log.Error(err))
	})
	s.delivered.Add(int64(delivered))

	s.logger.Debug("Published", log.String("channel", channel), log.Int("delivered", delivered))
	return delivered, nil
}

// Subscribers counts the clients explicitly subscribed to channel.
func (s *Server) Subscribers(channel string) int {
	n := 0
	for c := range s.each() {
		if c.subscribed(channel) {
			n++
		}
	}
	return n
}

// Kick closes every client connection, cleanly or by dropping the socket,
// and returns how many were closed.
func (s *Server) Kick(clean bool) int {
	return concurrent.Count(s.each(), fanOutLimit, func(c *client) error {
		c.close(clean)
		return nil
	}, nil)
}

// SweepIdle drops every client that sent nothing within IdleTimeout and
// returns how many it dropped.
func (s *Server) SweepIdle() int {
	if s.config.IdleTimeout <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-s.config.IdleTimeout)
	idle := concurrent.Filter(s.each(), func(c *client) bool { return c.idleSince(cutoff) })
	return concurrent.Count(idle, fanOutLimit, func(c *client) error {
		s.logger.Info("Dropping idle client",
			log.String("client_id", c.id),
			log.Duration("idle_for", time.Since(c.seenAt())))
		c.close(false)
		return nil
	}, nil)
}

func (s *Server) runSweep(timeout time.Duration) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.SweepIdle(); n > 0 {
				s.logger.Debug("Idle sweep", log.Int("dropped", n))
			}
		case <-s.stopChan:
			return
		}
	}
}

// each yields the registered clients.
func (s *Server) each() iter.Seq[*client] {
	return func(yield func(*client) bool) {
		s.clients.Range(func(_, value any) bool {
			return yield(value.(*client))
		})
	}
}

// Received returns the retained data frames clients sent, oldest first.
func (s *Server) Received() []Inbound {
	s.inboxMu.Lock()
	defer s.inboxMu.Unlock()
	return s.inbox.Snapshot()
}

func (s *Server) Stats() Stats {
	return Stats{
		Clients:   s.clientCount.Load(),
		Published: s.published.Load(),
		Delivered: s.delivered.Load(),
		Received:  s.received.Load(),
		Running:   atomic.LoadInt32(&s.running) == 1,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Stats())
}

func (s *Server) authorized(token string) bool {
	return s.config.Token == "" || token == s.config.Token
}

// register admits c, refusing it when the server is full.
func (s *Server) register(c *client) error {
	if s.clientCount.Add(1) > int64(s.config.MaxClients) {
		s.clientCount.Add(-1)
		return ErrMaxClientsReached
	}
	s.clients.Store(c.id, c)
	s.logger.Info("Client connected",
		log.String("client_id", c.id),
		log.String("dialect", string(c.dialect)),
		log.Int64("total_clients", s.clientCount.Load()))
	return nil
}

func (s *Server) unregister(c *client) {
	if _, loaded := s.clients.LoadAndDelete(c.id); !loaded {
		return
	}
	s.clientCount.Add(-1)
	_ = c.conn.Close()
	s.logger.Info("Client disconnected",
		log.String("client_id", c.id),
		log.Duration("connected_for", time.Since(c.connectedAt)),
		log.Int64("total_clients", s.clientCount.Load()))
}

// handleFrame applies one JSON frame from c: heartbeat pings are answered,
// intents change the client's channel set and anything else is kept as
// inbound data.
func (s *Server) handleFrame(c *client, raw json.RawMessage) {
	c.touch()
	msg, err := protocol.Decode(raw)
	if err != nil {
		s.logger.Warn("Dropping malformed frame", log.String("client_id", c.id), log.Error(err))
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		if err := c.send(protocol.PongFrame(time.Now())); err != nil {
			s.logger.Warn("Failed to answer ping", log.String("client_id", c.id), log.Error(err))
		}
	case protocol.TypePong, protocol.TypeAuth:
	case protocol.TypeSubscribe:
		if c.subscribe(msg.Channel) {
			s.logger.Debug("Client subscribed", log.String("client_id", c.id), log.String("channel", msg.Channel))
		}
	case protocol.TypeUnsubscribe:
		if c.unsubscribe(msg.Channel) {
			s.logger.Debug("Client unsubscribed", log.String("client_id", c.id), log.String("channel", msg.Channel))
		}
	default:
		msg.ReceivedAt = time.Now()
		s.received.Add(1)
		s.inboxMu.Lock()
		s.inbox.PushBack(Inbound{ClientID: c.id, Dialect: c.dialect, Message: msg})
		s.inboxMu.Unlock()
	}
}
