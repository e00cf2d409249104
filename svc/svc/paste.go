package svc

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"raisu/cfg"
	"raisu/metrics"
	"raisu/pkg/domain"
	"raisu/pkg/envelope"
	"raisu/pkg/kms"
	"raisu/svc/auth"
	"raisu/svc/fetch"
	"raisu/svc/util"
)

const (
	DefaultDuration = 24 * time.Hour
	MinDuration     = time.Minute
	MaxDuration     = 30 * 24 * time.Hour
)

// Store is the paste table, normally *db.SQLite.
type Store interface {
	Create(ctx context.Context, p *domain.Paste) error
	Get(ctx context.Context, id string) (*domain.Paste, error)
	Delete(ctx context.Context, id string) error
	IncrViews(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Evicter drops a fetched envelope from a cache tier so a deleted paste
// stops being served to viewers.
type Evicter interface {
	DeleteEnvelope(ctx context.Context, key string) error
}

type LocalEvicter interface {
	Delete(key string)
}

// Paste is the self-hosted provider: envelopes sealed at rest under a
// per-paste DEK that is itself wrapped by the KMS adapter.
type Paste struct {
	store    Store
	hasher   *auth.Hasher
	tokens   *util.DeletionTokens
	kms      *kms.Adapter
	dekCache *kms.DEKCache
	cfg      *cfg.Cfg

	local  LocalEvicter
	shared Evicter

	viewQueue       chan string
	viewWorkerWg    sync.WaitGroup
	activeCreateOps int32
	shutdownCtx     context.Context
	shutdownFn      context.CancelFunc
	// opMu orders begin against Shutdown so no operation is admitted
	// after opWg.Wait starts.
	opMu            sync.RWMutex
	shutdown        bool
	opWg            sync.WaitGroup
	shutdownOnce    sync.Once
}

func NewPaste(store Store, h *auth.Hasher, tokens *util.DeletionTokens, adapter *kms.Adapter, c *cfg.Cfg) (*Paste, error) {
	if store == nil || h == nil || tokens == nil || adapter == nil || c == nil {
		return nil, errors.New("paste service: nil dependency")
	}
	workers := c.WorkerPoolSize
	if workers <= 0 {
		workers = 4
	}
	shutdownCtx, shutdownFn := context.WithCancel(context.Background())
	p := &Paste{
		store:       store,
		hasher:      h,
		tokens:      tokens,
		kms:         adapter,
		dekCache:    kms.NewDEKCache(adapter, c.DEKCacheTTL),
		cfg:         c,
		viewQueue:   make(chan string, workers*100),
		shutdownCtx: shutdownCtx,
		shutdownFn:  shutdownFn,
	}
	for i := 0; i < workers; i++ {
		p.viewWorkerWg.Add(1)
		go p.viewWorker()
	}
	return p, nil
}

// SetEvicters wires the envelope caches that must forget a paste on delete.
// Either may be nil.
func (p *Paste) SetEvicters(local LocalEvicter, shared Evicter) {
	p.local = local
	p.shared = shared
}

func (p *Paste) viewWorker() {
	defer p.viewWorkerWg.Done()
	defer func() {
		if r := recover(); r != nil {
			util.Error().Interface("panic", r).Msg("view worker panicked")
		}
	}()
	for id := range p.viewQueue {
		ctx, cancel := context.WithTimeout(p.shutdownCtx, 5*time.Second)
		if err := p.store.IncrViews(ctx, id); err != nil {
			cancel()
			if errors.Is(err, context.Canceled) {
				return
			}
			util.Warn().Err(err).Str("id", id).Msg("failed to incr views")
			continue
		}
		cancel()
	}
}

func (p *Paste) Shutdown() {
	p.shutdownOnce.Do(func() {
		p.opMu.Lock()
		p.shutdown = true
		p.opMu.Unlock()
		p.opWg.Wait()
		close(p.viewQueue)
		done := make(chan struct{})
		go func() {
			p.viewWorkerWg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			util.Warn().Msg("view workers didn't stop in time")
		}
		p.shutdownFn()
		p.dekCache.Stop()
		util.Debug().Msg("paste service shutdown complete")
	})
}

// Duration applies the default and bounds to a requested lifetime.
func Duration(d time.Duration) (time.Duration, error) {
	if d == 0 {
		return DefaultDuration, nil
	}
	if d < MinDuration || d > MaxDuration {
		return 0, domain.ErrInvalidDuration
	}
	return d, nil
}

var ErrShuttingDown = errors.New("service shutting down")

func (p *Paste) begin() error {
	p.opMu.RLock()
	defer p.opMu.RUnlock()
	if p.shutdown {
		return ErrShuttingDown
	}
	p.opWg.Add(1)
	return nil
}

// Create stores an envelope and returns the paste with its deletion token.
// The content must already be a sealed envelope; plaintext is refused.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, string, error) {
	if err := p.begin(); err != nil {
		return nil, "", err
	}
	defer p.opWg.Done()
	if load := atomic.AddInt32(&p.activeCreateOps, 1); p.cfg.MaxWorkerLoad > 0 && load > int32(p.cfg.MaxWorkerLoad) {
		atomic.AddInt32(&p.activeCreateOps, -1)
		return nil, "", errors.New("worker pool overloaded")
	}
	defer atomic.AddInt32(&p.activeCreateOps, -1)

	if params.Envelope == "" {
		return nil, "", domain.ErrContentRequired
	}
	if int64(len(params.Envelope)) > p.cfg.MaxPasteSize {
		return nil, "", domain.ErrPasteTooLarge
	}
	if !envelope.LooksSealed(params.Envelope) {
		return nil, "", domain.ErrInvalidEnvelope
	}
	dur, err := Duration(params.Duration)
	if err != nil {
		return nil, "", err
	}

	id, err := util.GenID(ctx, p.store.Exists)
	if err != nil {
		return nil, "", domain.ErrIDGenerationFailed
	}
	dek, err := kms.GenerateDEK()
	if err != nil {
		return nil, "", errors.Wrap(err, "generate dek")
	}
	defer util.Wipe(dek)

	now := time.Now().UTC()
	blob, err := json.Marshal(domain.NewPasteBlob(params.Envelope, now, now.Add(dur)))
	if err != nil {
		return nil, "", errors.Wrap(err, "marshal paste blob")
	}
	sealed, err := kms.Seal(blob, dek, []byte(id))
	if err != nil {
		return nil, "", errors.Wrap(err, "seal paste blob")
	}
	metrics.EncryptionOps.WithLabelValues("seal").Inc()
	wrapped, err := kms.WrapDEK(ctx, p.kms, id, dek)
	if err != nil {
		return nil, "", errors.Wrap(err, "wrap dek")
	}
	metrics.EncryptionOps.WithLabelValues("wrap").Inc()

	token, err := p.tokens.Issue(id, p.cfg.DeletionTokenExpiry)
	if err != nil {
		return nil, "", errors.Wrap(err, "issue deletion token")
	}
	tokenHash, err := p.hasher.Hash(ctx, token)
	if err != nil {
		return nil, "", errors.Wrap(err, "hash deletion token")
	}

	paste := &domain.Paste{
		ID:                id,
		SealedBlob:        sealed,
		WrappedDEK:        wrapped,
		DeletionTokenHash: tokenHash,
		CreatedAt:         now,
		ExpiresAt:         now.Add(dur),
		ClientIPHash:      params.ClientIPHash,
	}
	if err := p.store.Create(ctx, paste); err != nil {
		return nil, "", errors.Wrap(err, "create paste")
	}
	paste.Envelope = params.Envelope
	metrics.PasteCreated.Inc()
	return paste, token, nil
}

// Get opens a stored paste. Expired and missing pastes are both
// ErrPasteNotFound.
func (p *Paste) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()

	paste, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			return nil, domain.ErrPasteNotFound
		}
		return nil, errors.Wrap(err, "get paste")
	}
	if !time.Now().Before(paste.ExpiresAt) {
		return nil, domain.ErrPasteNotFound
	}
	dek, err := p.dekCache.Unwrap(ctx, id, paste.WrappedDEK)
	if err != nil {
		return nil, errors.Wrap(err, "unwrap dek")
	}
	defer util.Wipe(dek)
	plain, err := kms.Open(paste.SealedBlob, dek, []byte(id))
	if err != nil {
		return nil, errors.Wrap(err, "open paste blob")
	}
	metrics.EncryptionOps.WithLabelValues("open").Inc()
	var blob domain.PasteBlob
	if err := json.Unmarshal(plain, &blob); err != nil {
		return nil, errors.Wrap(err, "unmarshal paste blob")
	}
	if blob.Version != domain.PasteBlobVersion {
		return nil, errors.Errorf("unsupported paste blob version %d", blob.Version)
	}
	paste.Envelope = blob.Envelope

	select {
	case p.viewQueue <- id:
	default:
		util.Warn().Str("id", id).Msg("view queue full, dropping increment")
	}
	metrics.PasteServed.Inc()
	return paste, nil
}

// Delete removes a paste when token is the one issued for it.
func (p *Paste) Delete(ctx context.Context, id, token string) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.opWg.Done()
	if token == "" {
		return domain.ErrUnauthorized
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	paste, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if paste.DeletionTokenHash == "" {
		return domain.ErrUnauthorized
	}
	if !p.hasher.Verify(token, paste.DeletionTokenHash) {
		return domain.ErrUnauthorized
	}
	if err := p.tokens.Verify(ctx, token, id); err != nil {
		util.Warn().Err(err).Str("id", id).Msg("deletion token rejected")
		return domain.ErrUnauthorized
	}
	if err := p.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete paste")
	}
	p.dekCache.Forget(id, paste.WrappedDEK)

	key := fetch.CacheKey(fetch.ProviderSelf, id)
	if p.local != nil {
		p.local.Delete(key)
	}
	if p.shared != nil {
		if err := p.shared.DeleteEnvelope(ctx, key); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to evict deleted paste from shared cache")
		}
	}
	metrics.PasteDeleted.Inc()
	util.Info().Str("id", id).Msg("paste deleted via token")
	return nil
}

// Cleaner is the store side of the expiry worker.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// RunCleaner prunes expired pastes every interval until ctx is done.
func RunCleaner(ctx context.Context, store Cleaner, interval time.Duration) {
	reqID := util.NewRequestID()
	ctx = util.SetRequestID(ctx, reqID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	util.Info().Str("request_id", reqID).Dur("interval", interval).Msg("cleanup worker started")
	for {
		select {
		case <-ctx.Done():
			util.Info().Str("request_id", reqID).Msg("cleanup worker shutting down")
			return
		case <-ticker.C:
			prune(ctx, store)
		}
	}
}

func prune(ctx context.Context, store Cleaner) int {
	metrics.PruneCycles.Inc()
	deleted, err := store.CleanupExpired(ctx)
	if err != nil {
		util.Error().Err(err).Str("request_id", util.GetRequestID(ctx)).Msg("cleanup failed")
		return 0
	}
	if deleted > 0 {
		metrics.PrunedPastes.Add(float64(deleted))
		util.Info().Int("deleted", deleted).Str("request_id", util.GetRequestID(ctx)).Msg("cleanup completed")
	}
	return deleted
}
