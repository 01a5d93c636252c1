package transport

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/foxseedlab/voicememo/internal/transport"
	"github.com/gorilla/websocket"
)

// SessionRunner drives one session over an accepted connection. It owns the
// transport and is expected to close it.
type SessionRunner interface {
	Run(ctx context.Context, t transport.Transport)
}

type ServerConfig struct {
	MaxMessageBytes int64
	AllowedOrigins  []string
}

type Server struct {
	upgrader        websocket.Upgrader
	runner          SessionRunner
	maxMessageBytes int64
}

func NewServer(cfg ServerConfig, runner SessionRunner) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		runner:          runner,
		maxMessageBytes: cfg.MaxMessageBytes,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	slog.Info("websocket connection accepted", "remote_addr", r.RemoteAddr)

	conn := NewWebSocketConn(ws, s.maxMessageBytes)
	defer func() {
		if err := conn.Close(transport.CloseNormal, ""); err != nil {
			slog.Debug("websocket close after session", "error", err)
		}
	}()
	s.runner.Run(r.Context(), conn)
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			set[o] = struct{}{}
		}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		if !ok {
			slog.Warn("rejected websocket origin", "origin", origin)
		}
		return ok
	}
}
