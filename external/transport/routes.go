package transport

import (
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const SessionPath = "/ws/transcribe"

// NewMux mounts the session endpoint next to the Google login routes,
// health and metrics. authRoutes enforces its own methods.
func NewMux(sessions, authRoutes http.Handler, gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET "+SessionPath, sessions)
	for _, path := range []string{"/login", "/oauth2callback", "/logout", "/auth/status"} {
		mux.Handle(path, authRoutes)
	}
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}
