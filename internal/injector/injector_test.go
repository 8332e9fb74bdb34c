package injector

import (
	"context"
	"testing"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/config"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvideTransports_RegistersEveryAdapter(t *testing.T) {
	r := ProvideTransports(config.Default(), log.Nop())
	assert.Equal(t, []protocol.Kind{protocol.KindQUIC, protocol.KindSocketIO, protocol.KindWebSocket}, r.Kinds())
}

func TestProvideSessionConfig_ResolvesTransport(t *testing.T) {
	cfg := config.Default()
	cfg.Realtime.URL = "http://localhost:3001"
	assert.Equal(t, protocol.KindSocketIO, ProvideSessionConfig(cfg).Kind)

	cfg.Realtime.URL = "quic://edge.example.com:4433"
	assert.Equal(t, protocol.KindQUIC, ProvideSessionConfig(cfg).Kind)
}

func TestInitializeSession_DisabledWithoutURL(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"

	s := InitializeSession(cfg)
	defer s.Disconnect()
	assert.False(t, s.Enabled())
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, session.StateDisconnected, s.State())
}

func TestInitializeSessionWithCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Realtime.URL = "wss://realtime.example.com/ws"

	s := InitializeSessionWithCredentials(cfg, session.StaticToken(""))
	defer s.Disconnect()
	assert.True(t, s.Enabled())
	assert.ErrorIs(t, s.Connect(context.Background()), session.ErrNoCredential)
}

func TestInitializePushServer(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Server.Token = "secret"

	srv := InitializePushServer(cfg)
	require.NotNil(t, srv.Handler())
	assert.False(t, srv.Stats().Running)
}
