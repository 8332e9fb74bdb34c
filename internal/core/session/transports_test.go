package session

import (
	"testing"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTransports_RegistersEveryAdapter(t *testing.T) {
	r := DefaultTransports(TransportOptions{Logger: log.Nop()})
	assert.Equal(t, []protocol.Kind{protocol.KindQUIC, protocol.KindSocketIO, protocol.KindWebSocket}, r.Kinds())

	for _, kind := range r.Kinds() {
		tr, err := r.New(kind)
		require.NoError(t, err, kind)
		assert.NotNil(t, tr, kind)
	}
}
