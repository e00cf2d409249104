package kms

import (
	"context"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// DEKs are XChaCha20-Poly1305 keys, one per stored paste.
func GenerateDEK() ([]byte, error) {
	dek := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(dek); err != nil {
		return nil, err
	}
	return dek, nil
}

// Seal encrypts plaintext under dek, binding aad. Output is nonce || box.
func Seal(plaintext, dek, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func Open(sealed, dek, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dek)
	if err != nil {
		return nil, err
	}
	n := aead.NonceSize()
	if len(sealed) < n+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	return aead.Open(nil, sealed[:n], sealed[n:], aad)
}

// PasteContext binds a wrapped DEK to the paste it belongs to.
func PasteContext(pasteID string) EncryptionContext {
	return EncryptionContext{"purpose": "paste-dek", "paste_id": pasteID}
}

func WrapDEK(ctx context.Context, a *Adapter, pasteID string, dek []byte) ([]byte, error) {
	return a.Encrypt(ctx, dek, PasteContext(pasteID))
}
