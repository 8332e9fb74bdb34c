// Package config loads realtime client and push server settings from YAML or
// TOML files, a .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat = errors.New("unknown config format")
	ErrInvalid       = errors.New("invalid config")
)

// TransportAuto picks the adapter from the endpoint URL.
const TransportAuto = "auto"

type Config struct {
	Realtime Realtime   `yaml:"realtime" toml:"realtime"`
	Log      log.Config `yaml:"log" toml:"log"`
	Server   Server     `yaml:"server" toml:"server"`
}

// Realtime configures the client session.
type Realtime struct {
	URL string `yaml:"url" toml:"url"`
	// Transport is auto, websocket, socketio or quic.
	Transport string `yaml:"transport" toml:"transport"`
	// Token is a static credential. Programs with rotating credentials pass
	// their own session.CredentialSource instead.
	Token     string   `yaml:"token" toml:"token"`
	Namespace string   `yaml:"namespace" toml:"namespace"`
	Path      string   `yaml:"path" toml:"path"`
	Channels  []string `yaml:"channels" toml:"channels"`

	AutoReconnect        bool          `yaml:"auto_reconnect" toml:"auto_reconnect"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	BackoffBase          time.Duration `yaml:"backoff_base" toml:"backoff_base"`
	BackoffMax           time.Duration `yaml:"backoff_max" toml:"backoff_max"`
	BackoffJitter        bool          `yaml:"backoff_jitter" toml:"backoff_jitter"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`

	MaxQueueSize         int           `yaml:"max_queue_size" toml:"max_queue_size"`
	StaleAfter           time.Duration `yaml:"stale_after" toml:"stale_after"`
	DrainStagger         time.Duration `yaml:"drain_stagger" toml:"drain_stagger"`
	ResubscribeOnConnect bool          `yaml:"resubscribe_on_connect" toml:"resubscribe_on_connect"`

	// InsecureSkipVerify disables certificate checks of the QUIC adapter.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`
}

// Server configures the development push server.
type Server struct {
	Addr string `yaml:"addr" toml:"addr"`
	// Token clients must present. Empty accepts everyone.
	Token string `yaml:"token" toml:"token"`
	// DemoInterval publishes a sample event on every channel this often.
	// Zero disables it.
	DemoInterval time.Duration `yaml:"demo_interval" toml:"demo_interval"`
	// IdleTimeout drops clients that stay silent this long. Zero keeps them.
	IdleTimeout time.Duration `yaml:"idle_timeout" toml:"idle_timeout"`
}

func Default() Config {
	sc := session.DefaultConfig()
	return Config{
		Realtime: Realtime{
			Transport:            TransportAuto,
			AutoReconnect:        sc.AutoReconnect,
			MaxReconnectAttempts: sc.MaxReconnectAttempts,
			BackoffBase:          sc.Backoff.Base,
			BackoffMax:           sc.Backoff.Max,
			HeartbeatInterval:    sc.HeartbeatInterval,
			HandshakeTimeout:     sc.HandshakeTimeout,
			MaxQueueSize:         sc.MaxQueueSize,
			StaleAfter:           sc.StaleAfter,
			DrainStagger:         sc.DrainStagger,
			ResubscribeOnConnect: sc.ResubscribeOnConnect,
		},
		Log: log.Config{Level: "info", Encoding: "json"},
		Server: Server{
			Addr:        ":8080",
			IdleTimeout: 2 * time.Minute,
		},
	}
}

// Load reads path on top of Default. The format follows the extension:
// .yaml and .yml use YAML, .toml uses TOML.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode yaml config %s: %w", path, err)
		}
	case ".toml":
		if _, err = toml.Decode(string(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("decode toml config %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	return cfg, nil
}

// Validate reports every problem found, joined.
func (c Config) Validate() error {
	var errs []error
	r := c.Realtime

	if r.URL != "" {
		if _, err := ResolveKind(r.URL, r.Transport); err != nil {
			errs = append(errs, err)
		}
	} else if r.Transport != "" && r.Transport != TransportAuto {
		if _, err := protocol.ParseKind(r.Transport); err != nil {
			errs = append(errs, err)
		}
	}
	if r.MaxReconnectAttempts < 0 {
		errs = append(errs, fmt.Errorf("%w: max_reconnect_attempts must not be negative", ErrInvalid))
	}
	if r.MaxQueueSize < 0 {
		errs = append(errs, fmt.Errorf("%w: max_queue_size must not be negative", ErrInvalid))
	}
	if r.BackoffMax > 0 && r.BackoffBase > r.BackoffMax {
		errs = append(errs, fmt.Errorf("%w: backoff_base %s exceeds backoff_max %s", ErrInvalid, r.BackoffBase, r.BackoffMax))
	}
	for name, d := range map[string]time.Duration{
		"heartbeat_interval": r.HeartbeatInterval,
		"handshake_timeout":  r.HandshakeTimeout,
		"stale_after":        r.StaleAfter,
		"drain_stagger":      r.DrainStagger,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative", ErrInvalid, name))
		}
	}
	if c.Log.Encoding != "" && c.Log.Encoding != "json" && c.Log.Encoding != "console" {
		errs = append(errs, fmt.Errorf("%w: log encoding %q", ErrInvalid, c.Log.Encoding))
	}
	return errors.Join(errs...)
}

// ResolveKind returns the adapter for rawURL. An explicit transport wins;
// with auto the endpoint decides: quic:// selects QUIC, API Gateway hosts
// (amazonaws.com) the raw WebSocket, local development hosts Socket.IO, and
// otherwise ws/wss means WebSocket and http/https Socket.IO.
func ResolveKind(rawURL, transport string) (protocol.Kind, error) {
	if transport != "" && transport != TransportAuto {
		return protocol.ParseKind(transport)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: url %q: %v", ErrInvalid, rawURL, err)
	}
	host := u.Hostname()
	scheme := strings.ToLower(u.Scheme)

	switch {
	case scheme == "quic":
		return protocol.KindQUIC, nil
	case strings.HasSuffix(host, "amazonaws.com"):
		return protocol.KindWebSocket, nil
	case host == "localhost" || host == "127.0.0.1":
		return protocol.KindSocketIO, nil
	case scheme == "ws" || scheme == "wss":
		return protocol.KindWebSocket, nil
	case scheme == "http" || scheme == "https":
		return protocol.KindSocketIO, nil
	}
	return "", fmt.Errorf("%w: cannot pick a transport for %q", protocol.ErrUnsupportedTransport, rawURL)
}

// Session converts the realtime section. Call Validate first; an unresolved
// transport falls back to the raw WebSocket.
func (r Realtime) Session() session.Config {
	kind, err := ResolveKind(r.URL, r.Transport)
	if err != nil {
		kind = protocol.KindWebSocket
	}
	return session.Config{
		URL:                  r.URL,
		Kind:                 kind,
		Namespace:            r.Namespace,
		Path:                 r.Path,
		AutoReconnect:        r.AutoReconnect,
		MaxReconnectAttempts: r.MaxReconnectAttempts,
		Backoff: session.Backoff{
			Base:   r.BackoffBase,
			Max:    r.BackoffMax,
			Jitter: r.BackoffJitter,
		},
		HeartbeatInterval:    r.HeartbeatInterval,
		HandshakeTimeout:     r.HandshakeTimeout,
		MaxQueueSize:         r.MaxQueueSize,
		StaleAfter:           r.StaleAfter,
		DrainStagger:         r.DrainStagger,
		ResubscribeOnConnect: r.ResubscribeOnConnect,
	}
}
