package files

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harrylevesque/firenet/internal/prefs"
)

const groupFileSuffix = ".json"

// PrefsStore keeps each prefs group as one JSON object file under dir.
// Writes go to a temp file and are renamed into place.
type PrefsStore struct {
	dir    string
	mu     sync.RWMutex
	closed bool
}

// NewPrefsStore creates the directory if needed and returns a store rooted there.
func NewPrefsStore(dir string) (*PrefsStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create prefs dir: %w", err)
	}
	return &PrefsStore{dir: dir}, nil
}

func (s *PrefsStore) Group(name string) prefs.Group {
	return &fileGroup{store: s, path: filepath.Join(s.dir, name+groupFileSuffix)}
}

// ClearAll removes every group file in the directory.
func (s *PrefsStore) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return prefs.ErrClosed
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), groupFileSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *PrefsStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type fileGroup struct {
	store *PrefsStore
	path  string
}

// read loads the group file. The caller holds the store lock.
func (g *fileGroup) read() (map[string]string, error) {
	data, err := os.ReadFile(g.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(g.path), err)
	}
	return values, nil
}

// write replaces the group file. The caller holds the store lock.
func (g *fileGroup) write(values map[string]string) error {
	if len(values) == 0 {
		if err := os.Remove(g.path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(g.path), ".prefs-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, g.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (g *fileGroup) Get(key string) (string, bool, error) {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	if g.store.closed {
		return "", false, prefs.ErrClosed
	}
	values, err := g.read()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (g *fileGroup) Snapshot() (map[string]string, error) {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	if g.store.closed {
		return nil, prefs.ErrClosed
	}
	return g.read()
}

func (g *fileGroup) Put(values map[string]string) error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	if g.store.closed {
		return prefs.ErrClosed
	}
	current, err := g.read()
	if err != nil {
		return err
	}
	maps.Copy(current, values)
	return g.write(current)
}

func (g *fileGroup) Delete(keys ...string) error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	if g.store.closed {
		return prefs.ErrClosed
	}
	current, err := g.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(current, k)
	}
	return g.write(current)
}

func (g *fileGroup) Clear() error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	if g.store.closed {
		return prefs.ErrClosed
	}
	return g.write(nil)
}
