package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Sealed blobs are laid out as magic(8) + salt(16) + nonce(12) + ciphertext + tag(16).
const (
	sealMagic      = "GCM3NCR0"
	saltSize       = 16
	nonceSize      = 12
	tagSize        = 16
	kdfIterations  = 100000
	keySize        = 32
	sealHeaderSize = len(sealMagic) + saltSize + nonceSize
)

// IsSealed reports whether data carries the sealed-blob magic number.
func IsSealed(data []byte) bool {
	return len(data) >= len(sealMagic) && string(data[:len(sealMagic)]) == sealMagic
}

// Seal encrypts data at rest with AES-256-GCM under a PBKDF2 key derived from password.
func Seal(data []byte, password string) ([]byte, error) {
	if password == "" {
		return nil, fmt.Errorf("seal: empty password")
	}
	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, sealHeaderSize+len(data)+tagSize)
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

// Unseal reverses Seal.
func Unseal(data []byte, password string) ([]byte, error) {
	if !IsSealed(data) {
		return nil, fmt.Errorf("unseal: missing %s header", sealMagic)
	}
	if len(data) < sealHeaderSize+tagSize {
		return nil, fmt.Errorf("GCM data too short: %d bytes", len(data))
	}

	salt := data[len(sealMagic) : len(sealMagic)+saltSize]
	nonce := data[len(sealMagic)+saltSize : sealHeaderSize]
	gcm, err := newGCM(password, salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, data[sealHeaderSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfIterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
