package db

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	envelopePrefix  = "envelope:"
	usedTokenPrefix = "used_token:"
	ratePrefix      = "rl:"
)

type RedisOptions struct {
	URL      string
	TLS      bool
	Username string
	Password string
	Timeout  time.Duration
	// CACert and ServerName apply when TLS is set.
	CACert     string
	ServerName string
}

// Redis backs the shared envelope cache, the global rate-limit window and
// deletion token replay tracking.
type Redis struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func NewRedis(ctx context.Context, o RedisOptions) (*Redis, error) {
	opt, err := redis.ParseURL(o.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	opt.PoolSize = 50
	opt.MinIdleConns = 5
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.MaxRetries = 2
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 256 * time.Millisecond
	if o.TLS {
		tc, err := redisTLSConfig(o)
		if err != nil {
			return nil, errors.Wrap(err, "redis tls config")
		}
		opt.TLSConfig = tc
	}
	if o.Username != "" {
		opt.Username = o.Username
	}
	if o.Password != "" {
		opt.Password = o.Password
	}
	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return NewRedisFromClient(client, o.Timeout), nil
}

// NewRedisFromClient wraps a client the caller built, such as a cluster
// client.
func NewRedisFromClient(c redis.UniversalClient, timeout time.Duration) *Redis {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Redis{client: c, timeout: timeout}
}

func redisTLSConfig(o RedisOptions) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: o.ServerName}
	if o.CACert == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, errors.Wrap(err, "system cert pool")
		}
		tc.RootCAs = pool
		return tc, nil
	}
	pem, err := os.ReadFile(o.CACert)
	if err != nil {
		return nil, errors.Wrap(err, "read redis CA cert")
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("no certificates in redis CA file")
	}
	tc.RootCAs = pool
	return tc, nil
}

// GetEnvelope returns ("", false, nil) on a miss.
func (r *Redis) GetEnvelope(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	v, err := r.client.Get(ctx, envelopePrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "get envelope")
	}
	return v, true, nil
}

func (r *Redis) SetEnvelope(ctx context.Context, key, envelope string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return errors.Wrap(r.client.Set(ctx, envelopePrefix+key, envelope, ttl).Err(), "set envelope")
}

func (r *Redis) DeleteEnvelope(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return errors.Wrap(r.client.Del(ctx, envelopePrefix+key).Err(), "delete envelope")
}

var rateScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[1])
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end
	if current >= tonumber(ARGV[2]) then
		return current + 1
	end
	local n = redis.call("INCR", KEYS[1])
	if n == 1 then
		redis.call("PEXPIRE", KEYS[1], ARGV[1])
	end
	return n
`)

// RateLimit counts a hit in a fixed window and returns the usage including
// this hit. Rejected hits are not recorded.
func (r *Redis) RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := rateScript.Run(ctx, r.client, []string{ratePrefix + key}, window.Milliseconds(), limit).Int()
	if err != nil {
		return 0, errors.Wrap(err, "rate limit script")
	}
	return n, nil
}

func (r *Redis) MarkUsed(ctx context.Context, tokenHash string, ttl time.Duration) error {
	if tokenHash == "" {
		return errors.New("token hash cannot be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return errors.Wrap(r.client.Set(ctx, usedTokenPrefix+tokenHash, "1", ttl).Err(), "mark token used")
}

func (r *Redis) IsUsed(ctx context.Context, tokenHash string) (bool, error) {
	if tokenHash == "" {
		return false, errors.New("token hash cannot be empty")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	n, err := r.client.Exists(ctx, usedTokenPrefix+tokenHash).Result()
	if err != nil {
		return false, errors.Wrap(err, "token used check")
	}
	return n > 0, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
