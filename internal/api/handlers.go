package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/harrylevesque/firenet/internal/auth"
	"github.com/harrylevesque/firenet/internal/client"
	"github.com/harrylevesque/firenet/internal/push"
	"github.com/harrylevesque/firenet/internal/statussync"
	"github.com/harrylevesque/firenet/internal/utils"
)

const maxBodyBytes = 64 << 10

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto an HTTP status. Remote 401/403 pass through,
// other remote failures are reported as 502.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		code = http.StatusBadRequest
	case errors.Is(err, auth.ErrNotLoggedIn), errors.Is(err, client.ErrMissingToken):
		code = http.StatusUnauthorized
	default:
		switch utils.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			code = utils.StatusCode(err)
		}
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err == nil {
		err = json.Unmarshal(body, v)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// outcomeCode picks the HTTP status for a sync outcome. Cached successes are 200.
func outcomeCode(o statussync.Outcome) int {
	switch o.Kind {
	case statussync.KindSuccess:
		return http.StatusOK
	case statussync.KindForbidden:
		return http.StatusForbidden
	case statussync.KindSessionInvalid:
		return http.StatusUnauthorized
	}
	if errors.Is(o.Err, auth.ErrNotLoggedIn) || errors.Is(o.Err, statussync.ErrSessionChanged) {
		return http.StatusUnauthorized
	}
	return http.StatusBadGateway
}

func (s *server) token() string {
	return s.Service.Session().Token()
}

// loginHandler signs in and returns the username. The token stays in the session store.
func (s *server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := s.Service.Login(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auth.LoginResponse{Username: strings.TrimSpace(req.Username)})
}

// statusHandler runs a sync with the stored token and returns the outcome.
func (s *server) statusHandler(w http.ResponseWriter, r *http.Request) {
	o := s.Service.Refresh(r.Context())
	writeJSON(w, outcomeCode(o), NewOutcomeView(o))
}

func (s *server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if s.Refresher == nil {
		s.statusHandler(w, r)
		return
	}
	if !s.Refresher.Trigger() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "refresh throttled"})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// logoutHandler always succeeds; the remote call is best-effort.
func (s *server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	s.Service.Logout(r.Context(), s.token())
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) updatePromptSeenHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.UpdatePromptSeen(r.Context(), s.token()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) reportUpdateHandler(w http.ResponseWriter, r *http.Request) {
	token := s.token()
	if token == "" {
		writeError(w, auth.ErrNotLoggedIn)
		return
	}
	sent, err := s.Service.ReportAppUpdateIfNeeded(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reported": sent})
}

type pushTokenRequest struct {
	Token string `json:"token"`
}

func (s *server) pushTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req pushTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Token == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "token is required"})
		return
	}
	if err := s.Service.RegisterPushToken(r.Context(), req.Token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pushHandler accepts a push data payload, flat or wrapped in "data".
func (s *server) pushHandler(w http.ResponseWriter, r *http.Request) {
	if s.Push == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "push handling disabled"})
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	data, err := push.DecodePayload(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	res := s.Push.Handle(data)
	writeJSON(w, http.StatusOK, map[string]string{"result": res.String()})
}

func (s *server) stateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Board.Snapshot())
}

func (s *server) noticesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Board.Drain())
}

// deviceIDHandler returns the identity sent at login.
func (s *server) deviceIDHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"device_id": s.Service.DeviceID()})
}
