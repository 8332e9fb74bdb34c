package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/config"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/injector"
)

func main() {
	configPath := flag.String("config", "", "YAML or TOML config file")
	addr := flag.String("addr", "", "listen address, overrides the config")
	demo := flag.Duration("demo", -1, "publish sample events this often, 0 disables")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *demo >= 0 {
		cfg.Server.DemoInterval = *demo
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := injector.InitializePushServer(cfg)
	if err = srv.Start(cfg.Server.Addr); err != nil {
		fmt.Fprintln(os.Stderr, "Error starting server:", err)
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = srv.Stop(shutdownCtx); err != nil {
		fmt.Fprintln(os.Stderr, "Error stopping server:", err)
	}
}

func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if err := config.LoadEnv(&cfg, ".env"); err != nil {
		return config.Config{}, err
	}
	return cfg, cfg.Validate()
}
