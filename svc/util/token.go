package util

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrTokenExpired   = errors.New("deletion token expired")
	ErrTokenForged    = errors.New("deletion token signature invalid")
	ErrTokenMalformed = errors.New("deletion token malformed")
	ErrTokenUsed      = errors.New("deletion token already used")
	ErrTokenKey       = errors.New("deletion token key must be 32 bytes with at least 16 distinct values")
)

// UsedTokenTracker remembers spent tokens so a deletion token works once.
type UsedTokenTracker interface {
	MarkUsed(ctx context.Context, tokenHash string, ttl time.Duration) error
	IsUsed(ctx context.Context, tokenHash string) (bool, error)
}

// DeletionTokens issues and checks paste deletion tokens. A token is an
// XChaCha20-Poly1305 box around expiry || pasteID || HMAC-SHA256(pasteID,
// expiry), base64url encoded.
type DeletionTokens struct {
	mu        sync.RWMutex
	key       []byte
	tracker   UsedTokenTracker
	replayTTL time.Duration
	now       func() time.Time
}

func NewDeletionTokens(secret []byte, replayTTL time.Duration) (*DeletionTokens, error) {
	if err := checkTokenKey(secret); err != nil {
		return nil, err
	}
	if replayTTL < time.Minute {
		return nil, errors.New("token replay TTL must be at least 1 minute")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &DeletionTokens{key: key, replayTTL: replayTTL, now: time.Now}, nil
}

func checkTokenKey(secret []byte) error {
	if len(secret) != chacha20poly1305.KeySize {
		return ErrTokenKey
	}
	seen := make(map[byte]struct{}, len(secret))
	for _, b := range secret {
		seen[b] = struct{}{}
	}
	if len(seen) < 16 {
		return ErrTokenKey
	}
	return nil
}

// SetTracker enables single-use enforcement. Without a tracker tokens stay
// valid until they expire.
func (d *DeletionTokens) SetTracker(t UsedTokenTracker) {
	d.mu.Lock()
	d.tracker = t
	d.mu.Unlock()
}

// Rotate swaps the signing key; outstanding tokens stop verifying.
func (d *DeletionTokens) Rotate(secret []byte) error {
	if err := checkTokenKey(secret); err != nil {
		return err
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	d.mu.Lock()
	old := d.key
	d.key = key
	d.mu.Unlock()
	Wipe(old)
	return nil
}

func (d *DeletionTokens) Issue(pasteID string, validFor time.Duration) (string, error) {
	d.mu.RLock()
	key := d.key
	d.mu.RUnlock()
	if key == nil {
		return "", errors.New("deletion token key wiped")
	}
	expiry := d.now().Add(validFor).Unix()
	payload := make([]byte, 8, 8+len(pasteID)+sha256.Size)
	binary.BigEndian.PutUint64(payload, uint64(expiry))
	payload = append(payload, pasteID...)
	payload = append(payload, sign(key, pasteID, expiry)...)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return "", errors.Wrap(err, "token aead")
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(payload)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "token nonce")
	}
	return base64.RawURLEncoding.EncodeToString(aead.Seal(nonce, nonce, payload, nil)), nil
}

// Verify checks token against pasteID and, with a tracker configured,
// marks it spent.
func (d *DeletionTokens) Verify(ctx context.Context, token, pasteID string) error {
	d.mu.RLock()
	key, tracker, ttl := d.key, d.tracker, d.replayTTL
	d.mu.RUnlock()
	if key == nil {
		return errors.New("deletion token key wiped")
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return ErrTokenMalformed
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return errors.Wrap(err, "token aead")
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return ErrTokenMalformed
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return ErrTokenForged
	}
	if len(plain) < 8+sha256.Size {
		return ErrTokenMalformed
	}
	expiry := int64(binary.BigEndian.Uint64(plain[:8]))
	id := string(plain[8 : len(plain)-sha256.Size])
	mac := plain[len(plain)-sha256.Size:]
	if !hmac.Equal(mac, sign(key, id, expiry)) || !EqualString(id, pasteID) {
		return ErrTokenForged
	}
	if d.now().Unix() > expiry {
		return ErrTokenExpired
	}
	if tracker == nil {
		return nil
	}

	h := HashToken(token)
	used, err := tracker.IsUsed(ctx, h)
	if err != nil {
		return errors.Wrap(err, "token replay check")
	}
	if used {
		return ErrTokenUsed
	}
	if err := tracker.MarkUsed(ctx, h, ttl); err != nil {
		return errors.Wrap(err, "mark token used")
	}
	return nil
}

// Wipe zeroes the signing key. The instance is unusable afterwards.
func (d *DeletionTokens) Wipe() {
	d.mu.Lock()
	Wipe(d.key)
	d.key = nil
	d.mu.Unlock()
}

func sign(key []byte, pasteID string, expiry int64) []byte {
	var exp [8]byte
	binary.BigEndian.PutUint64(exp[:], uint64(expiry))
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(pasteID))
	mac.Write(exp[:])
	return mac.Sum(nil)
}

// HashToken is the form a token is stored and tracked under.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
