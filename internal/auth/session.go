package auth

import (
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/prefs"
)

const (
	keyToken      = "auth_token"
	keyUsername   = "auth_username"
	keyFirstLogin = "first_login_ts"
)

var (
	// ErrNotLoggedIn is returned when an operation needs a stored session.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrEmptyToken is returned when saving a session without a token.
	ErrEmptyToken = errors.New("empty session token")
)

// SessionStore persists the current session credential in one prefs group.
type SessionStore struct {
	group  prefs.Group
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

// NewSessionStore keeps the credential in group.
func NewSessionStore(group prefs.Group, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{group: group, logger: logger, now: time.Now}
}

// Save stores token and username. The first-login time is written only
// when none is stored yet.
func (s *SessionStore) Save(token, username string) error {
	if token == "" {
		return ErrEmptyToken
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	values := map[string]string{keyToken: token, keyUsername: username}
	if _, ok, err := prefs.GetInt64(s.group, keyFirstLogin); err != nil {
		return err
	} else if !ok {
		values[keyFirstLogin] = prefs.FormatInt64(s.now().UnixMilli())
	}
	return s.group.Put(values)
}

// Credential reads the whole credential from one snapshot of the group.
func (s *SessionStore) Credential() (models.SessionCredential, error) {
	snap, err := s.group.Snapshot()
	if err != nil {
		return models.SessionCredential{}, err
	}
	c := models.SessionCredential{Token: snap[keyToken], Username: snap[keyUsername]}
	if raw, ok := snap[keyFirstLogin]; ok {
		c.FirstLoginMillis, _ = strconv.ParseInt(raw, 10, 64)
	}
	return c, nil
}

// Token returns the stored token, or "" when there is none or it cannot be read.
func (s *SessionStore) Token() string {
	v, _, err := s.group.Get(keyToken)
	if err != nil {
		s.logger.Warn("session token read failed", "err", err)
		return ""
	}
	return v
}

// Clear erases the credential, first-login time included.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group.Clear()
}
