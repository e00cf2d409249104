// Package lim rate limits API clients per endpoint.
package lim

import (
	"context"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"raisu/metrics"
	"raisu/svc/util"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
	windowTimeout   = 100 * time.Millisecond
	adaptiveFor     = 60 * time.Second
)

// Window is a shared fixed-window counter, normally Redis. RateLimit
// returns the usage after counting this hit.
type Window interface {
	RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

// Keyer turns a client IP into the key limits are tracked under.
type Keyer interface {
	Hash(ip string) (string, error)
}

type Options struct {
	RPM               int
	Burst             int
	ConservativeLimit int
	TrustedProxies    []string
}

type Limiter struct {
	window         Window
	keyer          Keyer
	trustedProxies []string
	detector       *AnomalyDetector

	adaptiveModeUntil int64

	mu            sync.Mutex
	localLimiters map[string]*limiterEntry
	evictionSem   chan struct{}

	rpm               int
	burst             int
	conservativeLimit int
	quit              chan struct{}
	stopOnce          sync.Once
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// New builds a limiter. window and keyer may be nil: without a window every
// client gets an in-process token bucket, without a keyer the raw IP is the
// key.
func New(o Options, window Window, keyer Keyer) (*Limiter, error) {
	if o.RPM <= 0 || o.ConservativeLimit <= 0 {
		return nil, errors.New("rate limits must be positive")
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	if err := ValidateProxies(o.TrustedProxies); err != nil {
		return nil, err
	}
	l := &Limiter{
		window:            window,
		keyer:             keyer,
		trustedProxies:    o.TrustedProxies,
		localLimiters:     make(map[string]*limiterEntry),
		evictionSem:       make(chan struct{}, 1),
		rpm:               o.RPM,
		burst:             o.Burst,
		conservativeLimit: o.ConservativeLimit,
		quit:              make(chan struct{}),
	}
	l.detector = NewAnomalyDetector(l.TriggerAdaptiveMode)
	l.detector.Start()
	go l.cleanupLoop()
	return l, nil
}

func ValidateProxies(proxies []string) error {
	for _, proxy := range proxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return errors.Wrapf(err, "invalid CIDR in trusted proxies: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return errors.Errorf("invalid IP in trusted proxies: %s", proxy)
		}
	}
	return nil
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictExpiredLimiters()
		case <-l.quit:
			return
		}
	}
}

func (l *Limiter) evictExpiredLimiters() {
	now := time.Now()
	l.mu.Lock()
	evicted := 0
	for key, entry := range l.localLimiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.localLimiters, key)
			evicted++
		}
	}
	remaining := len(l.localLimiters)
	l.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate limiter cleanup")
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		l.detector.Stop()
	})
}

// TriggerAdaptiveMode halves every limit for the next minute.
func (l *Limiter) TriggerAdaptiveMode() {
	atomic.StoreInt64(&l.adaptiveModeUntil, time.Now().Add(adaptiveFor).Unix())
}

func (l *Limiter) isAdaptiveMode() bool {
	return time.Now().Unix() < atomic.LoadInt64(&l.adaptiveModeUntil)
}

func (l *Limiter) RecordRequest() { l.detector.RecordRequest() }
func (l *Limiter) RecordError()   { l.detector.RecordError() }

func (l *Limiter) effective(limit int) int {
	if l.isAdaptiveMode() {
		limit /= 2
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (l *Limiter) clientKey(r *http.Request) string {
	ip := GetRealIP(r, l.trustedProxies)
	if l.keyer == nil {
		return ip
	}
	k, err := l.keyer.Hash(ip)
	if err != nil {
		util.Warn().Err(err).Msg("client hash unavailable, keying by ip")
		return ip
	}
	return k
}

// Check counts one request from r against endpoint's limit.
func (l *Limiter) Check(r *http.Request, endpoint string) *Result {
	key := l.clientKey(r)
	res := l.check(r.Context(), key, endpoint)
	if !res.Allowed {
		metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
	}
	return res
}

func (l *Limiter) check(ctx context.Context, key, endpoint string) *Result {
	now := time.Now()
	if l.window == nil {
		return l.local(key, endpoint, l.effective(l.rpm), l.burst)
	}
	limit := l.effective(l.rpm)
	ctx, cancel := context.WithTimeout(ctx, windowTimeout)
	defer cancel()
	usage, err := l.window.RateLimit(ctx, endpoint+":"+key, limit, time.Minute)
	if err != nil {
		util.Warn().Err(err).Str("endpoint", endpoint).Msg("shared rate limit unavailable, using conservative local limit")
		c := l.effective(l.conservativeLimit)
		return l.local(key, endpoint, c, c)
	}
	remaining := limit - usage
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   usage <= limit,
		Limit:     limit,
		Remaining: remaining,
		Reset:     now.Add(time.Minute),
	}
}

func (l *Limiter) local(key, endpoint string, perMinute, burst int) *Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if threshold := (maxLimiters * 9) / 10; len(l.localLimiters) >= threshold {
		if toEvict := len(l.localLimiters) / 10; toEvict > 0 {
			select {
			case l.evictionSem <- struct{}{}:
				go func() {
					defer func() { <-l.evictionSem }()
					l.evictOldest(toEvict)
				}()
			default:
			}
		}
	}
	k := endpoint + ":" + key
	entry, ok := l.localLimiters[k]
	if !ok {
		if len(l.localLimiters) >= maxLimiters {
			util.Warn().Int("limiters", len(l.localLimiters)).Msg("rate limiter at capacity, rejecting request")
			return &Result{Limit: perMinute, Reset: now.Add(time.Minute)}
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst)}
		l.localLimiters[k] = entry
	}
	entry.lastAccess = now
	if entry.limiter.Burst() != burst {
		entry.limiter.SetBurst(burst)
		entry.limiter.SetLimit(rate.Limit(float64(perMinute) / 60.0))
	}
	if !entry.limiter.Allow() {
		return &Result{Limit: perMinute, Reset: now.Add(time.Minute)}
	}
	remaining := int(entry.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: true, Limit: perMinute, Remaining: remaining, Reset: now.Add(time.Minute)}
}

func (l *Limiter) evictOldest(count int) {
	type kv struct {
		key        string
		lastAccess time.Time
	}
	l.mu.Lock()
	if len(l.localLimiters) < (maxLimiters*8)/10 {
		l.mu.Unlock()
		return
	}
	entries := make([]kv, 0, len(l.localLimiters))
	for k, v := range l.localLimiters {
		entries = append(entries, kv{k, v.lastAccess})
	}
	l.mu.Unlock()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastAccess.Before(entries[j].lastAccess)
	})
	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for i := 0; i < count && i < len(entries); i++ {
		if _, ok := l.localLimiters[entries[i].key]; ok {
			delete(l.localLimiters, entries[i].key)
			evicted++
		}
	}
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Msg("async limiter eviction completed")
	}
}

// GetRealIP returns the first untrusted hop, reading X-Forwarded-For from
// the right only when the direct peer is a trusted proxy.
func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}

	const maxIPsToParse = 100
	parsed := 0
	remaining := xff
	for len(remaining) > 0 && parsed < maxIPsToParse {
		var ipStr string
		if i := strings.LastIndexByte(remaining, ','); i == -1 {
			ipStr = strings.TrimSpace(remaining)
			remaining = ""
		} else {
			ipStr = strings.TrimSpace(remaining[i+1:])
			remaining = remaining[:i]
		}
		if ipStr == "" {
			continue
		}
		parsed++
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", util.RedactIP(ipStr)).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	if parsed >= maxIPsToParse {
		util.Warn().Int("parsed", parsed).Msg("XFF header excessive, truncated parsing")
	}
	return remoteIP
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsed := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") && parsed != nil {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsed) {
				return true
			}
		}
	}
	return false
}

func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
