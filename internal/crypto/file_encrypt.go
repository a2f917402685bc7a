package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"
)

var (
	// ErrInvalidKeyLength is returned when the provided key length is invalid.
	ErrInvalidKeyLength = errors.New("invalid key length")
	// ErrCiphertextTooShort is returned when a blob cannot hold a nonce.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// AEAD seals and opens values with AES-256-GCM. The nonce is prepended to the ciphertext.
type AEAD struct {
	gcm cipher.AEAD
}

// NewAEAD builds an AEAD from a 32-byte key.
func NewAEAD(key []byte) (*AEAD, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEAD{gcm: gcm}, nil
}

// NewAEADFromMaster derives a purpose-bound key from master and builds an AEAD.
func NewAEADFromMaster(master []byte, info string) (*AEAD, error) {
	key, err := DeriveKey(master, info)
	if err != nil {
		return nil, err
	}
	return NewAEAD(key)
}

// Seal encrypts plaintext. additional is authenticated but not encrypted.
func (a *AEAD) Seal(plaintext, additional []byte) ([]byte, error) {
	nonce := make([]byte, a.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := a.gcm.Seal(nil, nonce, plaintext, additional)
	return append(nonce, ct...), nil
}

// Open decrypts a blob produced by Seal with the same additional data.
func (a *AEAD) Open(blob, additional []byte) ([]byte, error) {
	ns := a.gcm.NonceSize()
	if len(blob) < ns {
		return nil, ErrCiphertextTooShort
	}
	return a.gcm.Open(nil, blob[:ns], blob[ns:], additional)
}
