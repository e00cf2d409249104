package fetch

import (
	"context"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"raisu/metrics"
	"raisu/pkg/domain"
	"raisu/pkg/pipeline"
	"raisu/svc/util"
)

// Local is the in-process tier, normally *cache.LRU.
type Local interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, envelope string, ttl time.Duration)
}

// Shared is the cross-instance tier, normally *db.Redis.
type Shared interface {
	GetEnvelope(ctx context.Context, key string) (string, bool, error)
	SetEnvelope(ctx context.Context, key, envelope string, ttl time.Duration) error
}

// Cached puts a two tier envelope cache in front of a Fetcher. Concurrent
// misses for one paste share a single upstream fetch. Failures are never
// cached.
type Cached struct {
	next   pipeline.Fetcher
	local  Local
	shared Shared
	ttl    time.Duration
	group  singleflight.Group
}

// NewCached wraps next. Either tier may be nil.
func NewCached(next pipeline.Fetcher, local Local, shared Shared, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cached{next: next, local: local, shared: shared, ttl: ttl}
}

// CacheKey names a paste in both tiers without exposing its key.
func CacheKey(providerID uint8, pasteKey string) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte{providerID})
	h.Write([]byte(pasteKey))
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Cached) Fetch(ctx context.Context, providerID uint8, pasteKey string) (string, error) {
	key := CacheKey(providerID, pasteKey)
	if c.local != nil {
		if env, ok := c.local.Get(ctx, key); ok {
			metrics.CacheHits.WithLabelValues("local").Inc()
			return env, nil
		}
	}
	if c.shared != nil {
		env, ok, err := c.shared.GetEnvelope(ctx, key)
		switch {
		case err != nil:
			util.Warn().Err(err).Msg("shared envelope cache unavailable")
		case ok:
			metrics.CacheHits.WithLabelValues("shared").Inc()
			if c.local != nil {
				c.local.Set(ctx, key, env, c.ttl)
			}
			return env, nil
		}
	}
	metrics.CacheMisses.Inc()

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The first caller's cancellation must not fail the callers
		// waiting on the same key.
		fctx := context.WithoutCancel(ctx)
		env, err := c.next.Fetch(fctx, providerID, pasteKey)
		if err != nil {
			return "", err
		}
		if c.local != nil {
			c.local.Set(fctx, key, env, c.ttl)
		}
		if c.shared != nil {
			if err := c.shared.SetEnvelope(fctx, key, env, c.ttl); err != nil {
				util.Warn().Err(err).Msg("failed to store envelope in shared cache")
			}
		}
		return env, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &domain.TransportError{Provider: providerID, Code: transportCode(ctx, ctx.Err()), Err: ctx.Err()}
	}
}
