// Package device derives the per-install device identity sent at login.
package device

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harrylevesque/firenet/internal/prefs"
	"github.com/harrylevesque/firenet/internal/utils"
)

const (
	// DefectiveHardwareID is returned by a known batch of devices and never identifies one.
	DefectiveHardwareID = "9774d56d682e549c"

	legacyTokenKey = "device_legacy_uuid"
)

// HardwareIDProvider returns the platform's stable hardware identifier, or
// an error or empty string when none is available.
type HardwareIDProvider interface {
	HardwareID() (string, error)
}

// HardwareIDFunc adapts a function to HardwareIDProvider.
type HardwareIDFunc func() (string, error)

func (f HardwareIDFunc) HardwareID() (string, error) { return f() }

// Resolver computes the device identity. It never fails; without a usable
// hardware identifier it falls back to a random token persisted in group.
type Resolver struct {
	hw     HardwareIDProvider
	model  string
	group  prefs.Group
	logger *slog.Logger
	newID  func() string

	mu     sync.Mutex
	cached string
}

// NewResolver builds a resolver. model is sanitized by removing whitespace.
func NewResolver(hw HardwareIDProvider, model string, group prefs.Group, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		hw:     hw,
		model:  utils.SanitizeModel(model),
		group:  group,
		logger: logger,
		newID:  func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// Resolve returns the device identity, either "stable:<id>:<model>" or
// "legacy:<token>:<model>".
func (r *Resolver) Resolve() string {
	if id := r.hardwareID(); id != "" {
		return "stable:" + id + ":" + r.model
	}
	return "legacy:" + r.legacyToken() + ":" + r.model
}

func (r *Resolver) hardwareID() string {
	if r.hw == nil {
		return ""
	}
	id, err := r.hw.HardwareID()
	if err != nil {
		r.logger.Debug("hardware id unavailable", "err", err)
		return ""
	}
	id = strings.TrimSpace(id)
	if id == "" || strings.EqualFold(id, DefectiveHardwareID) {
		return ""
	}
	return id
}

// legacyToken returns the persisted random token, minting it on first use.
func (r *Resolver) legacyToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached != "" {
		return r.cached
	}

	token, ok, err := r.group.Get(legacyTokenKey)
	if err != nil {
		r.logger.Warn("read device token failed", "err", err)
	}
	if ok && token != "" {
		r.cached = token
		return token
	}

	token = r.newID()
	if err := prefs.SetString(r.group, legacyTokenKey, token); err != nil {
		r.logger.Warn("persist device token failed", "err", err)
	}
	r.cached = token
	return token
}
