// Package cache holds fetched envelopes in process memory.
package cache

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU maps a cache key to an envelope with a per-entry expiry. The
// underlying cache is already synchronized.
type LRU struct {
	c   *lru.Cache[string, item]
	now func() time.Time
}

type item struct {
	envelope string
	exp      time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > 100000 {
		return nil, errors.New("cache size too large")
	}
	c, err := lru.New[string, item](size)
	if err != nil {
		return nil, err
	}
	return &LRU{c: c, now: time.Now}, nil
}

func (l *LRU) Get(ctx context.Context, key string) (string, bool) {
	if ctx.Err() != nil {
		return "", false
	}
	it, ok := l.c.Get(key)
	if !ok {
		return "", false
	}
	if l.now().After(it.exp) {
		l.c.Remove(key)
		return "", false
	}
	return it.envelope, true
}

func (l *LRU) Set(_ context.Context, key, envelope string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	l.c.Add(key, item{envelope: envelope, exp: l.now().Add(ttl)})
}

func (l *LRU) Delete(key string) {
	l.c.Remove(key)
}

func (l *LRU) Len() int {
	return l.c.Len()
}
