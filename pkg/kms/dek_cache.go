package kms

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DEKCache memoizes unwrapped DEKs so hot pastes do not round-trip to the
// provider on every read. Concurrent misses for one key share a call.
type DEKCache struct {
	adapter *Adapter
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*cachedDEK
	stopped bool
	stop    chan struct{}
}

type cachedDEK struct {
	dek       []byte
	expiresAt time.Time
}

type CacheStats struct {
	Entries int
	Expired int
}

func NewDEKCache(adapter *Adapter, ttl time.Duration) *DEKCache {
	c := &DEKCache{
		adapter: adapter,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]*cachedDEK),
		stop:    make(chan struct{}),
	}
	go c.evictionLoop()
	return c
}

// Unwrap returns a copy of the plaintext DEK for a paste; callers wipe it.
func (c *DEKCache) Unwrap(ctx context.Context, pasteID string, wrapped []byte) ([]byte, error) {
	key := cacheKey(pasteID, wrapped)
	if dek, ok := c.lookup(key); ok {
		return dek, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if dek, ok := c.lookup(key); ok {
			return dek, nil
		}
		dek, err := c.adapter.Decrypt(ctx, wrapped, PasteContext(pasteID))
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return dek, nil
		}
		stored := make([]byte, len(dek))
		copy(stored, dek)
		c.entries[key] = &cachedDEK{dek: stored, expiresAt: c.now().Add(c.ttl + jitter(key, c.ttl/10))}
		c.mu.Unlock()
		return dek, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]byte)
	out := make([]byte, len(shared))
	copy(out, shared)
	return out, nil
}

func (c *DEKCache) lookup(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		wipeBytes(e.dek)
		delete(c.entries, key)
		return nil, false
	}
	out := make([]byte, len(e.dek))
	copy(out, e.dek)
	return out, true
}

// Forget drops a paste's DEK, e.g. after the paste is deleted.
func (c *DEKCache) Forget(pasteID string, wrapped []byte) {
	key := cacheKey(pasteID, wrapped)
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		wipeBytes(e.dek)
		delete(c.entries, key)
	}
	c.mu.Unlock()
}

func cacheKey(pasteID string, wrapped []byte) string {
	h := sha256.New()
	h.Write([]byte(pasteID))
	h.Write([]byte{0})
	h.Write(wrapped)
	return hex.EncodeToString(h.Sum(nil))
}

// jitter spreads expiries so a burst of pastes does not expire together.
func jitter(key string, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	b, _ := hex.DecodeString(key[:16])
	return time.Duration(binary.BigEndian.Uint64(b) % uint64(max))
}

func (c *DEKCache) evictionLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *DEKCache) evictExpired() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			wipeBytes(e.dek)
			delete(c.entries, k)
		}
	}
}

// Stop halts eviction and wipes every cached key.
func (c *DEKCache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stop)
	for k, e := range c.entries {
		wipeBytes(e.dek)
		delete(c.entries, k)
	}
}

func (c *DEKCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := CacheStats{Entries: len(c.entries)}
	now := c.now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			s.Expired++
		}
	}
	return s
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
