package statussync

import (
	"encoding/json"
	"log/slog"

	"github.com/harrylevesque/firenet/internal/models"
	"github.com/harrylevesque/firenet/internal/prefs"
)

const lastStatusKey = "last_status"

// Cache persists the last successfully parsed status snapshot.
type Cache struct {
	group  prefs.Group
	logger *slog.Logger
}

// NewCache stores the snapshot in group.
func NewCache(group prefs.Group, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{group: group, logger: logger}
}

// Save replaces the snapshot.
func (c *Cache) Save(s *models.AccountStatus) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return prefs.SetString(c.group, lastStatusKey, string(data))
}

// Load returns the snapshot. An unreadable snapshot counts as absent.
func (c *Cache) Load() (*models.AccountStatus, bool) {
	raw, ok, err := c.group.Get(lastStatusKey)
	if err != nil {
		c.logger.Warn("status cache read failed", "err", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}
	var s models.AccountStatus
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		c.logger.Warn("status cache corrupt", "err", err)
		return nil, false
	}
	return &s, true
}

// Remove drops the snapshot.
func (c *Cache) Remove() error {
	return c.group.Delete(lastStatusKey)
}
