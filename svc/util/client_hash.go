package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidInterval = errors.New("rotation interval must be between 15m and 24h")

// ClientHasher turns client addresses into keyed digests for rate-limit keys
// and the stored creator hash. The key rotates every interval, so digests
// cannot be linked across epochs.
type ClientHasher struct {
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	pepper []byte
	epoch  int64
	key    []byte
}

func NewClientHasher(pepper []byte, interval time.Duration) (*ClientHasher, error) {
	if interval < 15*time.Minute || interval > 24*time.Hour {
		return nil, ErrInvalidInterval
	}
	if len(pepper) < 32 {
		return nil, errors.New("pepper must be at least 32 bytes")
	}
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &ClientHasher{interval: interval, pepper: p, now: time.Now, epoch: -1}, nil
}

// Hash returns "hmac-sha256:<epoch>:<hex>".
func (h *ClientHasher) Hash(ip string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pepper == nil {
		return "", errors.New("client hasher stopped")
	}
	epoch := h.now().Unix() / int64(h.interval.Seconds())
	if epoch != h.epoch {
		Wipe(h.key)
		h.key = h.deriveKey(epoch)
		h.epoch = epoch
	}
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(ip))
	return "hmac-sha256:" + strconv.FormatInt(epoch, 10) + ":" + hex.EncodeToString(mac.Sum(nil)), nil
}

func (h *ClientHasher) deriveKey(epoch int64) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte("raisu-client-v1:" + strconv.FormatInt(epoch, 10)))
	return mac.Sum(nil)
}

func (h *ClientHasher) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	Wipe(h.key)
	Wipe(h.pepper)
	h.key, h.pepper = nil, nil
}
