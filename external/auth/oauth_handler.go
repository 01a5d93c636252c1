package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxseedlab/voicememo/internal/auth"
	"github.com/google/uuid"
)

const (
	CallbackPath    = "/oauth2callback"
	stateCookieName = "voicememo_oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

// NewHTTPHandler serves GET /auth/status for any provider. The interactive
// login routes (GET /login, GET /oauth2callback, POST /logout) are only
// mounted when the provider stores an end-user token.
func NewHTTPHandler(provider auth.Provider) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"logged_in": provider.Authorize(r.Context()) == nil})
	})

	user, ok := provider.(*OAuthUserProvider)
	if !ok {
		return mux
	}
	mux.HandleFunc("GET /login", func(w http.ResponseWriter, r *http.Request) {
		state := uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    state,
			Path:     CallbackPath,
			MaxAge:   int(stateCookieTTL.Seconds()),
			HttpOnly: true,
			Secure:   requestScheme(r) == "https",
			SameSite: http.SameSiteLaxMode,
		})
		http.Redirect(w, r, user.AuthCodeURL(callbackURL(r), state), http.StatusFound)
	})
	mux.HandleFunc("GET "+CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			slog.Warn("oauth consent declined", "error", e)
			http.Error(w, "authorization was not granted", http.StatusBadRequest)
			return
		}
		cookie, err := r.Cookie(stateCookieName)
		if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
			http.Error(w, "invalid oauth state", http.StatusBadRequest)
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing authorization code", http.StatusBadRequest)
			return
		}
		if err := user.CompleteLogin(r.Context(), callbackURL(r), code); err != nil {
			slog.Error("oauth callback failed", "error", err)
			http.Error(w, "oauth callback failed", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: CallbackPath, MaxAge: -1})
		slog.Info("oauth login completed")
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("POST /logout", func(w http.ResponseWriter, r *http.Request) {
		if err := user.Logout(); err != nil {
			slog.Error("logout failed", "error", err)
			http.Error(w, "logout failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
	})
	return mux
}

// callbackURL rebuilds the callback address the browser used, honoring a
// TLS-terminating proxy.
func callbackURL(r *http.Request) string {
	return requestScheme(r) + "://" + r.Host + CallbackPath
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
