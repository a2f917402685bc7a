package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/harrylevesque/firenet/internal/client"
)

// ErrMissingCredentials is returned when username or password is blank.
var ErrMissingCredentials = errors.New("username and password are required")

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned to local callers after a login. The token
// stays in the session store.
type LoginResponse struct {
	Username string `json:"username"`
}

// Login authenticates with the service, binding the session to this
// device, and stores the credential.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrMissingCredentials
	}
	token, err := s.remote.Login(ctx, client.Credentials{
		Username:   username,
		Password:   password,
		DeviceID:   s.device.Resolve(),
		AppVersion: s.appVersion,
	})
	if err != nil {
		s.logger.Info("login failed", "username", username, "err", err)
		return "", err
	}
	if err := s.session.Save(token, username); err != nil {
		return "", err
	}
	s.logger.Info("logged in", "username", username)
	s.sink.SignedIn(username)
	return token, nil
}

// LoginAsync runs Login in the background and then calls cb.
func (s *Service) LoginAsync(username, password string, cb func(token string, err error)) {
	s.async(func(ctx context.Context) func() {
		token, err := s.Login(ctx, username, password)
		return func() {
			if cb != nil {
				cb(token, err)
			}
		}
	})
}
