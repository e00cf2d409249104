package kms

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// localProvider seals with an AES-256-GCM key from the environment. Secrets
// are plain environment variables.
type localProvider struct {
	aead cipher.AEAD
}

func newLocalProvider(key string) (*localProvider, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("KMS_LOCAL_KEY must be base64-encoded: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("KMS_LOCAL_KEY must decode to 32 bytes (got %d)", len(raw))
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &localProvider{aead: aead}, nil
}

func (l *localProvider) EncryptWithContext(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	nonce := make([]byte, l.aead.NonceSize(), l.aead.NonceSize()+len(plaintext)+l.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return l.aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (l *localProvider) DecryptWithContext(ctx context.Context, ciphertext, aad []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := l.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, errors.New("ciphertext too short")
	}
	return l.aead.Open(nil, ciphertext[:n], ciphertext[n:], aad)
}

func (l *localProvider) GetSecret(_ context.Context, key string) (string, error) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	return v, nil
}
