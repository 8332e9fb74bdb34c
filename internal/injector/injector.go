//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/config"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/pushserver"
)

// InitializeSession uses the static token of the config.
func InitializeSession(cfg config.Config) *session.Session {
	wire.Build(SessionSet, ProvideCredentials)
	return nil
}

// InitializeSessionWithCredentials lets the caller supply rotating tokens.
func InitializeSessionWithCredentials(cfg config.Config, creds session.CredentialSource) *session.Session {
	wire.Build(SessionSet)
	return nil
}

func InitializePushServer(cfg config.Config) *pushserver.Server {
	wire.Build(ProvideLogger, ProvidePushServerConfig, ProvidePushServer)
	return nil
}
