package shortcode

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"raisu/pkg/domain"
)

func testKey() []byte {
	k := make([]byte, KeySize)
	for i := range k {
		k[i] = byte(i * 7)
	}
	return k
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		provider uint8
		pasteKey string
	}{
		{"pastes.dev", 0, "abc123"},
		{"hastebin", 1, "uvawocifat"},
		{"empty key", 7, ""},
		{"max key", 255, strings.Repeat("k", MaxPasteKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := make([]byte, KeySize)
			if _, err := rand.Read(key); err != nil {
				t.Fatal(err)
			}
			code, err := Encode(tt.provider, tt.pasteKey, key)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if strings.ContainsAny(code, "+/=") {
				t.Errorf("token %q is not URL-safe", code)
			}
			got, err := Decode(code)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got.ProviderID != tt.provider || got.PasteKey != tt.pasteKey {
				t.Errorf("Decode() = (%d, %q), want (%d, %q)", got.ProviderID, got.PasteKey, tt.provider, tt.pasteKey)
			}
			if !bytes.Equal(got.SymmetricKey[:], key) {
				t.Errorf("symmetric key mismatch")
			}
			again, err := got.Encode()
			if err != nil || again != code {
				t.Errorf("re-encode = %q, %v; want %q", again, err, code)
			}
		})
	}
}

func TestDecode_KnownBytes(t *testing.T) {
	raw := append([]byte{0, 6}, "abc123"...)
	raw = append(raw, testKey()...)
	code := base64.RawURLEncoding.EncodeToString(raw)

	tok, err := Decode(code)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if tok.ProviderID != 0 || tok.PasteKey != "abc123" {
		t.Fatalf("got provider %d key %q", tok.ProviderID, tok.PasteKey)
	}
}

func TestDecode_AcceptsPaddingAndStandardAlphabet(t *testing.T) {
	key := bytes.Repeat([]byte{0xfb}, KeySize)
	code, err := Encode(1, "k", key)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := base64.RawURLEncoding.DecodeString(code)
	for _, variant := range []string{
		base64.URLEncoding.EncodeToString(raw),
		base64.StdEncoding.EncodeToString(raw),
		"  " + code + "\n",
	} {
		tok, err := Decode(variant)
		if err != nil {
			t.Fatalf("Decode(%q) error = %v", variant, err)
		}
		if !bytes.Equal(tok.SymmetricKey[:], key) {
			t.Fatalf("Decode(%q) key mismatch", variant)
		}
	}
}

func TestDecode_BadKeyLength(t *testing.T) {
	for _, n := range []int{0, 15, 17, 32} {
		raw := append([]byte{0, 3}, "abc"...)
		raw = append(raw, make([]byte, n)...)
		_, err := Decode(base64.RawURLEncoding.EncodeToString(raw))
		if !errors.Is(err, domain.ErrBadKeyLength) {
			t.Errorf("remainder %d: err = %v, want BAD_KEY_LENGTH", n, err)
		}
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[string]string{
		"not base64":    "!!!not-base64!!!",
		"empty":         "",
		"one byte":      base64.RawURLEncoding.EncodeToString([]byte{0}),
		"key truncated": base64.RawURLEncoding.EncodeToString([]byte{0, 200, 'a', 'b'}),
	}
	for name, code := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(code)
			if !errors.Is(err, domain.ErrMalformedToken) {
				t.Fatalf("err = %v, want MALFORMED_TOKEN", err)
			}
		})
	}
}

func TestEncode_RejectsBadInput(t *testing.T) {
	if _, err := Encode(0, "abc", make([]byte, 15)); !errors.Is(err, domain.ErrBadKeyLength) {
		t.Errorf("short key: err = %v", err)
	}
	if _, err := Encode(0, strings.Repeat("x", 256), testKey()); !errors.Is(err, domain.ErrMalformedToken) {
		t.Errorf("long paste key: err = %v", err)
	}
}
