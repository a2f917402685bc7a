package statussync

import (
	"net/http"
	"strings"

	"github.com/harrylevesque/firenet/internal/utils"
)

// Class is the failure category that decides a sync's side effects.
type Class int

const (
	// ClassTransient covers timeouts, DNS failures, 5xx and anything unrecognised.
	ClassTransient Class = iota
	// ClassForbidden means the account is suspended.
	ClassForbidden
	// ClassSessionInvalid means the token was revoked or expired.
	ClassSessionInvalid
)

func (c Class) String() string {
	switch c {
	case ClassForbidden:
		return "forbidden"
	case ClassSessionInvalid:
		return "session_invalid"
	default:
		return "transient"
	}
}

// The service only reports these conditions in message text, so the
// markers must match what it emits.
var (
	suspensionMarkers = []string{
		"http_403",
		"forbidden",
		"suspended",
		"سرویس شما مسدود",
	}
	sessionInvalidMarkers = []string{
		"http_401",
		"unauthorized",
		"token is invalid",
		"invalid or expired",
		"unauthenticated",
	}
)

// Classify maps a failure onto a Class by the reply's status code or a
// case-insensitive marker match. Suspension wins over session invalidation.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}
	code := utils.StatusCode(err)
	msg := strings.ToLower(err.Error())
	if code == http.StatusForbidden || containsAny(msg, suspensionMarkers) {
		return ClassForbidden
	}
	if code == http.StatusUnauthorized || containsAny(msg, sessionInvalidMarkers) {
		return ClassSessionInvalid
	}
	return ClassTransient
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
