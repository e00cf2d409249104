// Package shortcode packs a provider id, paste key and AES key into the
// URL-safe token handed to viewers.
//
// Layout before text encoding:
//
//	[0]            provider id
//	[1]            key length n
//	[2, 2+n)       paste key
//	[2+n, 2+n+16)  AES-128 key
package shortcode

import (
	"encoding/base64"
	"fmt"
	"strings"

	"raisu/pkg/domain"
)

const (
	KeySize      = 16
	MaxPasteKey  = 255
	headerLength = 2
)

type Token struct {
	ProviderID   uint8
	PasteKey     string
	SymmetricKey [KeySize]byte
}

// Encode returns the unpadded URL-safe text form of the token.
func Encode(providerID uint8, pasteKey string, key []byte) (string, error) {
	if len(key) != KeySize {
		return "", &domain.FormatError{
			Kind: domain.FormatBadKeyLength,
			Msg:  fmt.Sprintf("symmetric key must be %d bytes, got %d", KeySize, len(key)),
		}
	}
	if len(pasteKey) > MaxPasteKey {
		return "", &domain.FormatError{
			Kind: domain.FormatMalformedToken,
			Msg:  fmt.Sprintf("paste key is %d bytes, limit is %d", len(pasteKey), MaxPasteKey),
		}
	}
	buf := make([]byte, 0, headerLength+len(pasteKey)+KeySize)
	buf = append(buf, providerID, byte(len(pasteKey)))
	buf = append(buf, pasteKey...)
	buf = append(buf, key...)
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (t Token) Encode() (string, error) {
	return Encode(t.ProviderID, t.PasteKey, t.SymmetricKey[:])
}

func Decode(s string) (Token, error) {
	raw, err := decodeText(s)
	if err != nil {
		return Token{}, &domain.FormatError{Kind: domain.FormatMalformedToken, Msg: "invalid base64", Err: err}
	}
	if len(raw) < headerLength {
		return Token{}, &domain.FormatError{
			Kind: domain.FormatMalformedToken,
			Msg:  fmt.Sprintf("token is %d bytes, header needs %d", len(raw), headerLength),
		}
	}
	keyLen := int(raw[1])
	if len(raw) < headerLength+keyLen {
		return Token{}, &domain.FormatError{
			Kind: domain.FormatMalformedToken,
			Msg:  fmt.Sprintf("paste key truncated: want %d bytes, have %d", keyLen, len(raw)-headerLength),
		}
	}
	rest := raw[headerLength+keyLen:]
	if len(rest) != KeySize {
		return Token{}, &domain.FormatError{
			Kind: domain.FormatBadKeyLength,
			Msg:  fmt.Sprintf("symmetric key must be %d bytes, got %d", KeySize, len(rest)),
		}
	}
	t := Token{
		ProviderID: raw[0],
		PasteKey:   string(raw[headerLength : headerLength+keyLen]),
	}
	copy(t.SymmetricKey[:], rest)
	return t, nil
}

// decodeText maps the URL-safe alphabet back to standard base64 and
// restores padding, so tokens with or without '=' both decode.
func decodeText(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	s = strings.TrimRight(s, "=")
	if pad := len(s) % 4; pad != 0 {
		s += strings.Repeat("=", 4-pad)
	}
	return base64.StdEncoding.DecodeString(s)
}
