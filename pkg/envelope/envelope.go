// Package envelope opens and seals the encrypted blob stored at a paste
// provider: base64(IV || AES-128-CBC(PKCS#7(plaintext))).
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"raisu/pkg/domain"
)

const (
	KeySize = 16
	IVSize  = aes.BlockSize
)

// Open decodes and decrypts an envelope. Every failure after key validation
// is reported as INVALID_CIPHERTEXT; a wrong key and a corrupted blob look
// the same.
func Open(text string, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, &domain.CryptoError{
			Kind: domain.CryptoInvalidKey,
			Msg:  fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)),
		}
	}
	raw, err := DecodeText(text)
	if err != nil {
		return nil, &domain.CryptoError{Kind: domain.CryptoInvalidCiphertext, Msg: "invalid base64", Err: err}
	}
	return OpenBytes(raw, key)
}

// OpenBytes decrypts an already-decoded envelope.
func OpenBytes(raw, key []byte) ([]byte, error) {
	if len(raw) < IVSize {
		return nil, invalid("envelope is %d bytes, shorter than the IV", len(raw))
	}
	iv, body := raw[:IVSize], raw[IVSize:]
	if len(body) == 0 || len(body)%aes.BlockSize != 0 {
		return nil, invalid("ciphertext length %d is not a positive multiple of %d", len(body), aes.BlockSize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &domain.CryptoError{Kind: domain.CryptoInvalidKey, Err: err}
	}
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	plain, ok := unpad(out)
	if !ok {
		return nil, invalid("bad padding")
	}
	return plain, nil
}

// Seal encrypts plaintext under key with a fresh random IV.
func Seal(plaintext, key []byte) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	return SealWithIV(plaintext, key, iv)
}

func SealWithIV(plaintext, key, iv []byte) (string, error) {
	if len(key) != KeySize {
		return "", &domain.CryptoError{
			Kind: domain.CryptoInvalidKey,
			Msg:  fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(key)),
		}
	}
	if len(iv) != IVSize {
		return "", fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", &domain.CryptoError{Kind: domain.CryptoInvalidKey, Err: err}
	}
	padded := pad(plaintext)
	out := make([]byte, IVSize+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// NewKey returns a random AES-128 key.
func NewKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, err
	}
	return k, nil
}

// DecodeText strips whitespace anywhere in the text and accepts padded or
// unpadded standard base64.
func DecodeText(text string) ([]byte, error) {
	s := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// LooksSealed reports whether text has the shape of an envelope without
// decrypting it: IV plus at least one whole block.
func LooksSealed(text string) bool {
	raw, err := DecodeText(text)
	if err != nil {
		return false
	}
	n := len(raw) - IVSize
	return n >= aes.BlockSize && n%aes.BlockSize == 0
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	want := make([]byte, n)
	for i := range want {
		want[i] = byte(n)
	}
	if subtle.ConstantTimeCompare(b[len(b)-n:], want) != 1 {
		return nil, false
	}
	return b[:len(b)-n], true
}

func invalid(format string, args ...interface{}) error {
	return &domain.CryptoError{Kind: domain.CryptoInvalidCiphertext, Msg: fmt.Sprintf(format, args...)}
}
