package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadEnv overlays environment settings on cfg. Variables are read from the
// given .env files first; the process environment wins over them. Missing
// files are skipped.
//
// Recognised variables: REALTIME_URL, REALTIME_TRANSPORT, REALTIME_TOKEN,
// REALTIME_NAMESPACE, REALTIME_PATH, REALTIME_CHANNELS (comma separated),
// REALTIME_AUTO_RECONNECT, REALTIME_MAX_RECONNECT_ATTEMPTS,
// REALTIME_BACKOFF_BASE, REALTIME_BACKOFF_MAX, REALTIME_BACKOFF_JITTER,
// REALTIME_HEARTBEAT_INTERVAL, REALTIME_HANDSHAKE_TIMEOUT,
// REALTIME_MAX_QUEUE_SIZE, REALTIME_STALE_AFTER, REALTIME_DRAIN_STAGGER,
// REALTIME_RESUBSCRIBE_ON_CONNECT, REALTIME_INSECURE_SKIP_VERIFY, LOG_LEVEL,
// LOG_ENCODING, PUSH_ADDR, PUSH_TOKEN, PUSH_DEMO_INTERVAL and
// PUSH_IDLE_TIMEOUT.
func LoadEnv(cfg *Config, files ...string) error {
	fileEnv := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read env file %s: %w", file, err)
		}
		for k, v := range values {
			fileEnv[k] = v
		}
	}

	e := envReader{file: fileEnv}
	r := &cfg.Realtime
	e.str("REALTIME_URL", &r.URL)
	e.str("REALTIME_TRANSPORT", &r.Transport)
	e.str("REALTIME_TOKEN", &r.Token)
	e.str("REALTIME_NAMESPACE", &r.Namespace)
	e.str("REALTIME_PATH", &r.Path)
	e.list("REALTIME_CHANNELS", &r.Channels)
	e.boolean("REALTIME_AUTO_RECONNECT", &r.AutoReconnect)
	e.integer("REALTIME_MAX_RECONNECT_ATTEMPTS", &r.MaxReconnectAttempts)
	e.duration("REALTIME_BACKOFF_BASE", &r.BackoffBase)
	e.duration("REALTIME_BACKOFF_MAX", &r.BackoffMax)
	e.boolean("REALTIME_BACKOFF_JITTER", &r.BackoffJitter)
	e.duration("REALTIME_HEARTBEAT_INTERVAL", &r.HeartbeatInterval)
	e.duration("REALTIME_HANDSHAKE_TIMEOUT", &r.HandshakeTimeout)
	e.integer("REALTIME_MAX_QUEUE_SIZE", &r.MaxQueueSize)
	e.duration("REALTIME_STALE_AFTER", &r.StaleAfter)
	e.duration("REALTIME_DRAIN_STAGGER", &r.DrainStagger)
	e.boolean("REALTIME_RESUBSCRIBE_ON_CONNECT", &r.ResubscribeOnConnect)
	e.boolean("REALTIME_INSECURE_SKIP_VERIFY", &r.InsecureSkipVerify)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_ENCODING", &cfg.Log.Encoding)
	e.str("PUSH_ADDR", &cfg.Server.Addr)
	e.str("PUSH_TOKEN", &cfg.Server.Token)
	e.duration("PUSH_DEMO_INTERVAL", &cfg.Server.DemoInterval)
	e.duration("PUSH_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)

	return errors.Join(e.errs...)
}

type envReader struct {
	file map[string]string
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok {
		return v, true
	}
	v, ok := e.file[key]
	return v, ok
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = strings.TrimSpace(v)
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (e *envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		return
	}
	*dst = b
}

func (e *envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		return
	}
	*dst = n
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err))
		return
	}
	*dst = d
}
