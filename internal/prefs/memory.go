package prefs

import (
	"maps"
	"sync"
)

// Memory is an in-process Store. Nothing survives the process.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]map[string]string
	closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{groups: make(map[string]map[string]string)}
}

func (m *Memory) Group(name string) Group {
	return &memoryGroup{store: m, name: name}
}

func (m *Memory) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.groups = make(map[string]map[string]string)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

type memoryGroup struct {
	store *Memory
	name  string
}

func (g *memoryGroup) Get(key string) (string, bool, error) {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	if g.store.closed {
		return "", false, ErrClosed
	}
	v, ok := g.store.groups[g.name][key]
	return v, ok, nil
}

func (g *memoryGroup) Snapshot() (map[string]string, error) {
	g.store.mu.RLock()
	defer g.store.mu.RUnlock()
	if g.store.closed {
		return nil, ErrClosed
	}
	out := make(map[string]string, len(g.store.groups[g.name]))
	maps.Copy(out, g.store.groups[g.name])
	return out, nil
}

func (g *memoryGroup) Put(values map[string]string) error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	if g.store.closed {
		return ErrClosed
	}
	grp, ok := g.store.groups[g.name]
	if !ok {
		grp = make(map[string]string, len(values))
		g.store.groups[g.name] = grp
	}
	maps.Copy(grp, values)
	return nil
}

func (g *memoryGroup) Delete(keys ...string) error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	if g.store.closed {
		return ErrClosed
	}
	for _, k := range keys {
		delete(g.store.groups[g.name], k)
	}
	return nil
}

func (g *memoryGroup) Clear() error {
	g.store.mu.Lock()
	defer g.store.mu.Unlock()
	if g.store.closed {
		return ErrClosed
	}
	delete(g.store.groups, g.name)
	return nil
}
