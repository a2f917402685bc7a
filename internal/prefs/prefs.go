// Package prefs defines the grouped key-value persistence used for local
// session state. Values are strings; groups are independent namespaces.
package prefs

import (
	"errors"
	"strconv"
)

// Group names used by the session core.
const (
	GroupAuth   = "auth_prefs"
	GroupDevice = "device_prefs"
	GroupApp    = "app_prefs"
	GroupSecure = "secure_prefs"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("prefs: store closed")

// Group is one named namespace of a Store.
type Group interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Snapshot returns a copy of every key in the group.
	Snapshot() (map[string]string, error)
	// Put writes all values atomically: a reader sees either none or all of them.
	Put(values map[string]string) error
	// Delete removes keys. Missing keys are ignored.
	Delete(keys ...string) error
	// Clear removes every key in the group.
	Clear() error
}

// Store hands out groups backed by one persistence medium.
type Store interface {
	Group(name string) Group
	// ClearAll removes every group.
	ClearAll() error
	Close() error
}

// GetString returns the value for key or "" when absent.
func GetString(g Group, key string) (string, error) {
	v, _, err := g.Get(key)
	return v, err
}

// SetString writes a single key.
func SetString(g Group, key, value string) error {
	return g.Put(map[string]string{key: value})
}

// GetInt64 returns the integer value for key. ok is false when the key is
// absent or does not parse.
func GetInt64(g Group, key string) (int64, bool, error) {
	v, ok, err := g.Get(key)
	if err != nil || !ok {
		return 0, false, err
	}
	n, perr := strconv.ParseInt(v, 10, 64)
	if perr != nil {
		return 0, false, nil
	}
	return n, true, nil
}

// FormatInt64 renders n for storage.
func FormatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}

// GetBool returns the boolean value for key. ok is false when
// the key is absent or does not parse.
func GetBool(g Group, key string) (bool, bool, error) {
	v, ok, err := g.Get(key)
	if err != nil || !ok {
		return false, false, err
	}
	b, perr := strconv.ParseBool(v)
	if perr != nil {
		return false, false, nil
	}
	return b, true, nil
}

// SetBool writes a single boolean key.
func SetBool(g Group, key string, value bool) error {
	return SetString(g, key, strconv.FormatBool(value))
}
