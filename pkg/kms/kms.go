// Package kms wraps per-paste data keys with an external key provider:
// Vault transit, AWS KMS, or a local AES-GCM key for development.
package kms

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrProviderUnavailable = errors.New("kms provider unavailable")
	ErrRequiresPrimary     = errors.New("KMS_REQUIRE_PRIMARY is enabled, cannot use fallback provider")
)

// EncryptionContext is bound to a ciphertext as additional authenticated
// data; decrypting under a different context fails.
type EncryptionContext map[string]string

type Provider interface {
	EncryptWithContext(ctx context.Context, plaintext, aad []byte) ([]byte, error)
	DecryptWithContext(ctx context.Context, ciphertext, aad []byte) ([]byte, error)
	GetSecret(ctx context.Context, key string) (string, error)
}

type Config struct {
	VaultAddr       string
	VaultToken      string
	VaultTokenFile  string
	VaultMountPath  string
	VaultKeyID      string
	VaultSecretPath string
	AWSRegion       string
	AWSKeyID        string
	LocalKey        string
	RequirePrimary  bool
	FailClosed      bool
}

type Adapter struct {
	primary        Provider
	fallback       Provider
	failClosed     bool
	requirePrimary bool
	timeout        time.Duration
}

// NewAdapter picks Vault, then AWS, as primary; the local key is only a
// fallback and is refused when RequirePrimary is set.
func NewAdapter(ctx context.Context, c Config) (*Adapter, error) {
	var primary, fallback Provider
	var primaryErr error
	if c.VaultAddr != "" {
		if vp, err := newVaultProvider(ctx, c); err == nil {
			primary = vp
		} else {
			primaryErr = err
		}
	}
	if primary == nil && c.AWSRegion != "" {
		if ap, err := newAWSProvider(ctx, c); err == nil {
			primary = ap
		} else {
			primaryErr = err
		}
	}
	if primary == nil && !c.RequirePrimary && c.LocalKey != "" {
		lp, err := newLocalProvider(c.LocalKey)
		if err != nil {
			return nil, fmt.Errorf("local key provider: %w", err)
		}
		fallback = lp
	}
	if primary == nil && fallback == nil {
		if primaryErr != nil {
			return nil, fmt.Errorf("no KMS provider available: %w", primaryErr)
		}
		if c.RequirePrimary {
			return nil, ErrRequiresPrimary
		}
		return nil, ErrProviderUnavailable
	}
	return &Adapter{
		primary:        primary,
		fallback:       fallback,
		failClosed:     c.FailClosed,
		requirePrimary: c.RequirePrimary,
		timeout:        10 * time.Second,
	}, nil
}

// NewAdapterWith builds an adapter over explicit providers.
func NewAdapterWith(primary, fallback Provider, failClosed bool) *Adapter {
	return &Adapter{primary: primary, fallback: fallback, failClosed: failClosed, timeout: 10 * time.Second}
}

func (a *Adapter) Encrypt(ctx context.Context, plaintext []byte, ec EncryptionContext) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	aad := serializeEncryptionContext(ec)
	return a.route("encrypt", func(p Provider) ([]byte, error) {
		return p.EncryptWithContext(ctx, plaintext, aad)
	})
}

func (a *Adapter) Decrypt(ctx context.Context, ciphertext []byte, ec EncryptionContext) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	aad := serializeEncryptionContext(ec)
	return a.route("decrypt", func(p Provider) ([]byte, error) {
		return p.DecryptWithContext(ctx, ciphertext, aad)
	})
}

func (a *Adapter) GetSecret(ctx context.Context, key string) (string, error) {
	v, err := a.route("get secret", func(p Provider) ([]byte, error) {
		s, err := p.GetSecret(ctx, key)
		if err == nil && s == "" {
			err = fmt.Errorf("secret %s is empty", key)
		}
		return []byte(s), err
	})
	return string(v), err
}

func (a *Adapter) route(op string, call func(Provider) ([]byte, error)) ([]byte, error) {
	if a.primary != nil {
		out, err := call(a.primary)
		if err == nil {
			return out, nil
		}
		if a.requirePrimary {
			return nil, fmt.Errorf("primary kms %s failed (KMS_REQUIRE_PRIMARY=true): %w", op, err)
		}
		if a.failClosed || a.fallback == nil {
			return nil, fmt.Errorf("kms %s failed (fail-closed): %w", op, err)
		}
	}
	if a.fallback != nil {
		return call(a.fallback)
	}
	return nil, ErrProviderUnavailable
}

func serializeEncryptionContext(ec EncryptionContext) []byte {
	if len(ec) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ec))
	for k := range ec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte('=')
		buf.WriteString(ec[k])
		buf.WriteByte(';')
	}
	return buf.Bytes()
}
