// Package api serves the local control API used by the UI layer.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/harrylevesque/firenet/internal/auth"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
)

// Service is the part of auth.Service exposed over HTTP.
type Service interface {
	Login(ctx context.Context, username, password string) (string, error)
	Refresh(ctx context.Context) statussync.Outcome
	Logout(ctx context.Context, token string)
	UpdatePromptSeen(ctx context.Context, token string) error
	ReportAppUpdateIfNeeded(ctx context.Context, token string) (bool, error)
	RegisterPushToken(ctx context.Context, pushToken string) error
	DeviceID() string
	Session() *auth.SessionStore
}

// PushHandler consumes push data payloads.
type PushHandler interface {
	Handle(data map[string]string) push.Result
}

// Trigger requests a background refresh and reports false when throttled.
type Trigger interface {
	Trigger() bool
}

// Deps wires the router. Refresher may be nil, in which case /refresh
// syncs in the request.
type Deps struct {
	Service   Service
	Board     *Board
	Push      PushHandler
	Refresher Trigger
	Logger    *slog.Logger
}

type server struct {
	Deps
}

func NewRouter(d Deps) *mux.Router {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Board == nil {
		d.Board = NewBoard(0, d.Logger)
	}
	s := &server{Deps: d}

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "OK"); err != nil {
			s.Logger.Debug("health write failed", "err", err)
		}
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/login", s.loginHandler).Methods("POST")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/refresh", s.refreshHandler).Methods("POST")
	r.HandleFunc("/logout", s.logoutHandler).Methods("POST")
	r.HandleFunc("/update-prompt-seen", s.updatePromptSeenHandler).Methods("POST")
	r.HandleFunc("/report-update", s.reportUpdateHandler).Methods("POST")
	r.HandleFunc("/push-token", s.pushTokenHandler).Methods("POST")
	r.HandleFunc("/push", s.pushHandler).Methods("POST")

	r.HandleFunc("/state", s.stateHandler).Methods("GET")
	r.HandleFunc("/notices", s.noticesHandler).Methods("GET")
	r.HandleFunc("/deviceid", s.deviceIDHandler).Methods("GET")

	r.Use(s.logRequests)
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Logger.Debug("control request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
