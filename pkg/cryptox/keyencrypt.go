package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// keyEncryptionInfo binds the derived AES key to private key wrapping so the
// master secret can be reused for other purposes through DeriveKey.
const keyEncryptionInfo = "lpr/signing-key-encryption/v1"

// KeyEncrypter wraps private key material with AES-256-GCM under a key
// derived from the deployment master secret.
type KeyEncrypter struct {
	aead cipher.AEAD
}

// NewKeyEncrypter derives the wrapping key from masterSecret.
func NewKeyEncrypter(masterSecret []byte) (*KeyEncrypter, error) {
	if len(masterSecret) < MinSecretSize {
		return nil, ErrWeakSecret
	}

	key, err := DeriveKey(masterSecret, keyEncryptionInfo, 32)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &KeyEncrypter{aead: gcm}, nil
}

// Encrypt seals plaintext. Output format: [12-byte nonce][ciphertext][16-byte tag].
func (e *KeyEncrypter) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt.
func (e *KeyEncrypter) Decrypt(data []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}
