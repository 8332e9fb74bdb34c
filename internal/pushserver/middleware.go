package pushserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
)

// requestLogger logs every HTTP request, including websocket upgrades.
func requestLogger(logger log.Log) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			fields := []log.Field{
				log.String("method", r.Method),
				log.String("path", r.URL.Path),
				log.String("remote_addr", r.RemoteAddr),
				log.Int("status", ww.Status()),
				log.Duration("duration", time.Since(start)),
			}
			if ww.Status() >= http.StatusBadRequest {
				logger.Warn("Request rejected", fields...)
				return
			}
			logger.Debug("Request served", fields...)
		})
	}
}

// requireQueryToken rejects requests whose token query parameter does not
// match the configured token.
func (s *Server) requireQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r.URL.Query().Get("token")) {
			s.logger.Warn("Rejected raw client", log.String("remote_addr", r.RemoteAddr))
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
