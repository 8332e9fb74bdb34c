package pushserver

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/rs/xid"
)

// handleRaw serves the raw dialect, where every text frame is one JSON
// document. The token is checked by requireQueryToken.
func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		return
	}

	c := newClient(xid.New().String(), DialectRaw, conn, s.config.WriteTimeout)
	if err = s.register(c); err != nil {
		s.logger.Warn("Refusing client", log.String("remote_addr", r.RemoteAddr), log.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), deadline(s.config.WriteTimeout))
		_ = conn.Close()
		return
	}
	defer s.unregister(c)

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("Raw client read failed", log.String("client_id", c.id), log.Error(err))
			}
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		s.handleFrame(c, data)
	}
}
