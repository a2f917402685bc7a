package prefs

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/harrylevesque/firenet/internal/crypto"
)

// ErrCorrupt is returned when a sealed value fails to decode or authenticate.
var ErrCorrupt = errors.New("prefs: sealed value corrupt")

// Sealed encrypts every value of an underlying Store with AES-GCM. The
// group and key are bound to each ciphertext, so values cannot be moved
// between keys. Keys themselves are stored in the clear.
type Sealed struct {
	inner Store
	aead  *crypto.AEAD
}

// NewSealed wraps inner using a key derived from master.
func NewSealed(inner Store, master []byte) (*Sealed, error) {
	aead, err := crypto.NewAEADFromMaster(master, "firenet/prefs/v1")
	if err != nil {
		return nil, fmt.Errorf("derive prefs key: %w", err)
	}
	return &Sealed{inner: inner, aead: aead}, nil
}

func (s *Sealed) Group(name string) Group {
	return &sealedGroup{inner: s.inner.Group(name), aead: s.aead, name: name}
}

func (s *Sealed) ClearAll() error { return s.inner.ClearAll() }

func (s *Sealed) Close() error { return s.inner.Close() }

type sealedGroup struct {
	inner Group
	aead  *crypto.AEAD
	name  string
}

func (g *sealedGroup) ad(key string) []byte {
	return []byte(g.name + "/" + key)
}

func (g *sealedGroup) open(key, raw string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	plain, err := g.aead.Open(blob, g.ad(key))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return string(plain), nil
}

func (g *sealedGroup) Get(key string) (string, bool, error) {
	raw, ok, err := g.inner.Get(key)
	if err != nil || !ok {
		return "", ok, err
	}
	v, err := g.open(key, raw)
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (g *sealedGroup) Snapshot() (map[string]string, error) {
	raw, err := g.inner.Snapshot()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		plain, err := g.open(k, v)
		if err != nil {
			return nil, err
		}
		out[k] = plain
	}
	return out, nil
}

func (g *sealedGroup) Put(values map[string]string) error {
	sealed := make(map[string]string, len(values))
	for k, v := range values {
		blob, err := g.aead.Seal([]byte(v), g.ad(k))
		if err != nil {
			return err
		}
		sealed[k] = base64.StdEncoding.EncodeToString(blob)
	}
	return g.inner.Put(sealed)
}

func (g *sealedGroup) Delete(keys ...string) error { return g.inner.Delete(keys...) }

func (g *sealedGroup) Clear() error { return g.inner.Clear() }
