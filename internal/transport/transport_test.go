package transport

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrylevesque/firenet/internal/utils"
)

func TestCommandStopper(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses touch")
	}
	marker := filepath.Join(t.TempDir(), "stopped")
	s := NewCommandStopper([]string{"touch", marker}, utils.Discard())
	s.Stop()
	assert.EqualValues(t, 1, s.Runs())
	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCommandStopper_Empty(t *testing.T) {
	s := NewCommandStopper(nil, utils.Discard())
	s.Stop()
	assert.Zero(t, s.Runs())
	Nop{}.Stop()
}
