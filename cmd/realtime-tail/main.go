// realtime-tail connects to a realtime endpoint, subscribes to channels and
// prints every message and lifecycle change. Lines typed on stdin are sent
// to the server, as JSON when they parse and as a string otherwise.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/config"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/events/bus"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/injector"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file")
	url := flag.String("url", "", "realtime endpoint, overrides the config")
	transport := flag.String("transport", "", "auto, websocket, socketio or quic")
	token := flag.String("token", "", "bearer token, overrides the config")
	channels := flag.String("channels", "", "comma separated channels, * for all")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err == nil {
		applyFlags(&cfg, *url, *transport, *token, *channels)
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("config: %v", err))
		os.Exit(1)
	}
	if cfg.Realtime.URL == "" {
		fmt.Fprintln(os.Stderr, color.RedString("no endpoint: pass -url or set REALTIME_URL"))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, color.RedString("%v", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	s := injector.InitializeSession(cfg)
	defer func() {
		s.Disconnect()
		printMetrics(s.Metrics())
	}()

	watch(s)
	subscribe(s, cfg.Realtime.Channels)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.Connect(ctx); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		<-ctx.Done()
		return ctx.Err()
	})
	g.Go(func() error {
		return pipeStdin(ctx, s)
	})
	return g.Wait()
}

func watch(s *session.Session) {
	s.On(session.EventStateChange, func(ev bus.Event) error {
		change := ev.Data.(session.StateChange)
		fmt.Println(color.YellowString("[state] %s -> %s", change.From, change.To))
		return nil
	})
	s.On(session.EventConnected, func(bus.Event) error {
		fmt.Println(color.GreenString("[connected]"))
		return nil
	})
	s.On(session.EventError, func(ev bus.Event) error {
		fmt.Println(color.RedString("[error] %v", ev.Data))
		return nil
	})
	s.On(session.EventConnectionFailed, func(ev bus.Event) error {
		fmt.Println(color.HiRedString("[failed] %v", ev.Data))
		return nil
	})
}

func subscribe(s *session.Session, channels []string) {
	if len(channels) == 0 {
		channels = []string{protocol.WildcardChannel}
	}
	for _, channel := range channels {
		s.Subscribe(channel, func(msg protocol.Message) error {
			fmt.Printf("%s %s %s\n",
				color.GreenString(msg.ReceivedAt.Format(time.TimeOnly)),
				color.CyanString(msg.Channel),
				string(msg.Payload))
			return nil
		})
	}
}

// pipeStdin sends every line read from stdin until ctx ends or stdin closes.
func pipeStdin(ctx context.Context, s *session.Session) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if json.Valid([]byte(line)) {
				s.Send(json.RawMessage(line))
			} else {
				s.Send(line)
			}
		}
	}
}

func printMetrics(m session.Metrics) {
	fmt.Println(color.MagentaString(
		"sent=%d received=%d reconnects=%d queued=%d stale=%d evicted=%d connected_for=%s",
		m.MessagesSent, m.MessagesReceived, m.Reconnects, m.QueueDepth,
		m.StaleDropped, m.Evicted, m.ConnectionDuration.Round(time.Millisecond)))
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, config.LoadEnv(&cfg, ".env")
}

func applyFlags(cfg *config.Config, url, transport, token, channels string) {
	if url != "" {
		cfg.Realtime.URL = url
	}
	if transport != "" {
		cfg.Realtime.Transport = transport
	}
	if token != "" {
		cfg.Realtime.Token = token
	}
	if channels != "" {
		cfg.Realtime.Channels = strings.Split(channels, ",")
	}
}
