// Package secret protects portal passwords at rest.
package secret

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Protector encrypts and decrypts small secrets
type Protector interface {
	Protect(plaintext []byte) ([]byte, error)
	Unprotect(ciphertext []byte) ([]byte, error)
}

// argon2id parameters for deriving the key from the configured passphrase
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// AEADProtector seals secrets with XChaCha20-Poly1305; the nonce is prepended to the ciphertext
type AEADProtector struct {
	key []byte
}

// NewAEADProtector derives the key from passphrase and salt
func NewAEADProtector(passphrase, salt string) (*AEADProtector, error) {
	if passphrase == "" {
		return nil, errors.New("secrets passphrase is required")
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	return &AEADProtector{key: key}, nil
}

func (p *AEADProtector) Protect(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (p *AEADProtector) Unprotect(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(p.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("protected secret is too short")
	}
	nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unprotect secret: %w", err)
	}
	return plaintext, nil
}
