package files

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harrylevesque/firenet/internal/crypto"
)

// MasterKeyEnv overrides the key file when set.
const MasterKeyEnv = "MASTER_KEY_HEX"

// ErrNoMasterKey is returned when no key is configured and generation is off.
var ErrNoMasterKey = errors.New("master key not found")

// DecodeMasterKey parses a 64-char hex string into a 32-byte key.
func DecodeMasterKey(hexk string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimSpace(hexk))
	if err != nil {
		return nil, fmt.Errorf("master key hex decode error: %w", err)
	}
	if len(b) != crypto.KeySize {
		return nil, fmt.Errorf("master key length must be 32 bytes (hex 64 chars)")
	}
	return b, nil
}

// LoadOrCreateMasterKey resolves the master key from MASTER_KEY_HEX, then
// from path. When neither holds a key and generate is set, a new key is
// written to path with mode 0600.
func LoadOrCreateMasterKey(path string, generate bool) ([]byte, error) {
	if hexk := os.Getenv(MasterKeyEnv); hexk != "" {
		return DecodeMasterKey(hexk)
	}
	data, err := os.ReadFile(path)
	if err == nil {
		return DecodeMasterKey(string(data))
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	if !generate {
		return nil, fmt.Errorf("%w: %s", ErrNoMasterKey, path)
	}
	return GenerateMasterKey(path)
}

// GenerateMasterKey writes a fresh hex-encoded key to path. An existing
// file is never overwritten.
func GenerateMasterKey(path string) ([]byte, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	key := crypto.GenerateKey()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, err
	}
	if _, err := f.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return key, nil
}

// FileExists checks if the given file exists.
func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
