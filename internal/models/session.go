package models

import "time"

// SessionCredential is the persisted login of the current user.
type SessionCredential struct {
	Token            string `json:"token"`
	Username         string `json:"username"`
	FirstLoginMillis int64  `json:"first_login_ts"`
}

// Valid reports whether the credential carries a usable token.
func (c SessionCredential) Valid() bool { return c.Token != "" }

// FirstLogin returns the first-login time, or the zero time when unknown.
func (c SessionCredential) FirstLogin() time.Time {
	if c.FirstLoginMillis <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(c.FirstLoginMillis)
}
