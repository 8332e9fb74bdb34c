// Package injector wires a realtime Session and the development push server
// from a loaded config.Config.
package injector

import (
	"github.com/google/wire"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/config"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/pushserver"
)

// SessionSet builds a Session from config plus a credential source.
var SessionSet = wire.NewSet(
	ProvideLogger,
	ProvideSessionConfig,
	ProvideTransports,
	ProvideSession,
)

func ProvideLogger(cfg config.Config) log.Log {
	return log.NewWithConfig(cfg.Log)
}

// ProvideCredentials serves the static token of the config file.
func ProvideCredentials(cfg config.Config) session.CredentialSource {
	return session.StaticToken(cfg.Realtime.Token)
}

func ProvideSessionConfig(cfg config.Config) session.Config {
	return cfg.Realtime.Session()
}

// ProvideTransports registers every adapter with the timeouts and TLS
// settings of the config.
func ProvideTransports(cfg config.Config, logger log.Log) *protocol.Registry {
	return session.DefaultTransports(session.TransportOptions{
		HandshakeTimeout:   cfg.Realtime.HandshakeTimeout,
		InsecureSkipVerify: cfg.Realtime.InsecureSkipVerify,
		Logger:             logger,
	})
}

func ProvideSession(cfg session.Config, creds session.CredentialSource, transports *protocol.Registry, logger log.Log) *session.Session {
	return session.New(cfg, creds,
		session.WithLogger(logger),
		session.WithTransports(transports))
}

func ProvidePushServerConfig(cfg config.Config) pushserver.Config {
	pc := pushserver.DefaultConfig()
	pc.Token = cfg.Server.Token
	pc.DemoInterval = cfg.Server.DemoInterval
	pc.IdleTimeout = cfg.Server.IdleTimeout
	return pc
}

func ProvidePushServer(cfg pushserver.Config, logger log.Log) *pushserver.Server {
	return pushserver.New(cfg, logger)
}
