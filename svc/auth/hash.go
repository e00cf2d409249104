// Package auth hashes deletion tokens for storage. Tokens are already
// HMAC-signed; the stored argon2id digest means a leaked database row cannot
// be turned back into a working token.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"

	"raisu/svc/util"
)

const (
	maxSecretLength = 1024
	saltLen         = 16
	keyLen          = 32
)

var (
	ErrNotStarted   = errors.New("hasher not started")
	ErrShuttingDown = errors.New("hasher is shutting down")
	ErrQueueFull    = errors.New("hash queue full")
)

// Hasher runs argon2id on a fixed worker pool so a burst of creates cannot
// allocate unbounded argon2 memory.
type Hasher struct {
	iterations  uint32
	memory      uint32
	parallelism uint8

	mu     sync.RWMutex
	pepper []byte

	jobs     chan hashJob
	quit     chan struct{}
	wg       sync.WaitGroup
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once

	// verifyFloor pads Verify so mismatches and malformed digests take as
	// long as a match.
	verifyFloor time.Duration
}

type hashJob struct {
	secret string
	resp   chan hashResult
}

type hashResult struct {
	hash string
	err  error
}

func NewHasher(iterations, memory uint32, parallelism uint8, pepper []byte) (*Hasher, error) {
	if len(pepper) < 32 {
		return nil, errors.New("pepper must be at least 32 bytes")
	}
	if iterations == 0 || iterations > 100 {
		return nil, errors.New("iterations must be between 1 and 100")
	}
	if memory < 1024 || memory > 2*1024*1024 {
		return nil, errors.New("memory must be between 1024 and 2097152 KiB")
	}
	if parallelism == 0 || parallelism > 128 {
		return nil, errors.New("parallelism must be between 1 and 128")
	}
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &Hasher{
		iterations:  iterations,
		memory:      memory,
		parallelism: parallelism,
		pepper:      p,
		jobs:        make(chan hashJob, 1024),
		quit:        make(chan struct{}),
		verifyFloor: 150 * time.Millisecond,
	}, nil
}

func (h *Hasher) Start(workers int) error {
	h.startMu.Lock()
	defer h.startMu.Unlock()
	if h.started {
		return errors.New("hasher already started")
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go h.worker()
	}
	h.started = true
	return nil
}

func (h *Hasher) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
		h.wg.Wait()
		h.mu.Lock()
		util.Wipe(h.pepper)
		h.pepper = nil
		h.mu.Unlock()
	})
}

func (h *Hasher) worker() {
	defer h.wg.Done()
	for {
		select {
		case job := <-h.jobs:
			hash, err := h.hash(job.secret)
			job.resp <- hashResult{hash: hash, err: err}
		case <-h.quit:
			return
		}
	}
}

// Hash returns an encoded argon2id digest of secret, PHC style.
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	h.startMu.Lock()
	started := h.started
	h.startMu.Unlock()
	if !started {
		return "", ErrNotStarted
	}
	if len(secret) > maxSecretLength {
		return "", errors.New("secret too long")
	}
	select {
	case <-h.quit:
		return "", ErrShuttingDown
	default:
	}
	resp := make(chan hashResult, 1)
	select {
	case h.jobs <- hashJob{secret: secret, resp: resp}:
	case <-h.quit:
		return "", ErrShuttingDown
	case <-ctx.Done():
		return "", ErrQueueFull
	}
	select {
	case res := <-resp:
		return res.hash, res.err
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "hash")
	}
}

func (h *Hasher) hash(secret string) (string, error) {
	peppered := h.applyPepper(secret)
	if peppered == nil {
		return "", ErrShuttingDown
	}
	defer util.Wipe(peppered)
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "salt")
	}
	sum := argon2.IDKey(peppered, salt, h.iterations, h.memory, h.parallelism, keyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.iterations, h.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum)), nil
}

// Verify reports whether secret matches encoded. A malformed digest is a
// mismatch, not an error.
func (h *Hasher) Verify(secret, encoded string) bool {
	start := time.Now()
	defer func() {
		if d := h.verifyFloor - time.Since(start); d > 0 {
			time.Sleep(d)
		}
	}()
	if len(secret) > maxSecretLength {
		return false
	}
	p, ok := parseDigest(encoded)
	if !ok {
		return false
	}
	peppered := h.applyPepper(secret)
	if peppered == nil {
		return false
	}
	defer util.Wipe(peppered)
	other := argon2.IDKey(peppered, p.salt, p.t, p.m, p.p, uint32(len(p.sum)))
	defer util.Wipe(other)
	return subtle.ConstantTimeCompare(p.sum, other) == 1
}

// NeedsRehash reports whether encoded was made with other parameters.
func (h *Hasher) NeedsRehash(encoded string) bool {
	p, ok := parseDigest(encoded)
	return !ok || p.m != h.memory || p.t != h.iterations || p.p != h.parallelism
}

type digest struct {
	m, t      uint32
	p         uint8
	salt, sum []byte
}

func parseDigest(encoded string) (digest, bool) {
	var d digest
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return d, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &d.m, &d.t, &d.p); err != nil {
		return d, false
	}
	if d.m > 2*1024*1024 || d.t == 0 || d.t > 1000 || d.p == 0 || d.p > 128 {
		return d, false
	}
	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(d.salt) == 0 {
		return d, false
	}
	if d.sum, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.sum) == 0 || len(d.sum) > 256 {
		return d, false
	}
	return d, true
}

func (h *Hasher) applyPepper(secret string) []byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.pepper) == 0 {
		return nil
	}
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(secret))
	return mac.Sum(nil)
}
