package cryptox

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Argon2id parameters for deriving a sealing key from a passphrase.
const (
	sealSaltLength  = 16
	sealIterations  = 3
	sealMemory      = 64 * 1024
	sealParallelism = 2
)

// ErrSealedDataTooShort is returned when a sealed blob cannot hold salt and nonce.
var ErrSealedDataTooShort = errors.New("cryptox: sealed data too short")

// DeriveKey stretches a passphrase into a 32-byte XChaCha20-Poly1305 key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, sealIterations, sealMemory, sealParallelism, chacha20poly1305.KeySize)
}

// Seal encrypts plaintext under a key derived from passphrase.
// The output format is: [16-byte salt][24-byte nonce][ciphertext + 16-byte tag]
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	salt := make([]byte, sealSaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := chacha20poly1305.NewX(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, salt), nil
}

// Open reverses Seal. A wrong passphrase or tampered blob fails authentication.
func Open(passphrase string, sealed []byte) ([]byte, error) {
	if len(sealed) < sealSaltLength+chacha20poly1305.NonceSizeX {
		return nil, ErrSealedDataTooShort
	}

	salt := sealed[:sealSaltLength]
	nonce := sealed[sealSaltLength : sealSaltLength+chacha20poly1305.NonceSizeX]
	ciphertext := sealed[sealSaltLength+chacha20poly1305.NonceSizeX:]

	aead, err := chacha20poly1305.NewX(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, salt)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}
