package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
)

// ErrShortCiphertext is returned when a blob is too short to hold a nonce.
var ErrShortCiphertext = errors.New("crypto: ciphertext too short")

// Crypter seals settings blobs with AES-256-GCM.
type Crypter struct {
	aead cipher.AEAD
}

// New creates a Crypter from a 32 byte key.
func New(key []byte) (*Crypter, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("crypto: key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Crypter{aead: aead}, nil
}

// NewFromPassphrase derives the key with SHA-256 so any configured secret of
// sufficient length can be used.
func NewFromPassphrase(passphrase string) (*Crypter, error) {
	key := sha256.Sum256([]byte(passphrase))
	return New(key[:])
}

// Encrypt returns the ciphertext with the nonce prepended.
func (c *Crypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext produced by Encrypt.
func (c *Crypter) Decrypt(ciphertext []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, ErrShortCiphertext
	}
	return c.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}
